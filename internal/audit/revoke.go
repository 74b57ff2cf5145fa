package audit

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// approveSelector is the 4-byte selector of approve(address,uint256).
var approveSelector = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]

// RevokeCalldata assembles the calldata of approve(spender, 0) against the
// token contract, returned as a 0x-prefixed hex string for the client to
// sign and broadcast. The service never constructs or sends a transaction.
func RevokeCalldata(spender common.Address) string {
	data := make([]byte, 0, 4+32+32)
	data = append(data, approveSelector...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	data = append(data, make([]byte, 32)...)
	return hexutil.Encode(data)
}
