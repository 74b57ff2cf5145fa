package audit

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestRevokeCalldata(t *testing.T) {
	spender := common.HexToAddress("0x000000000000000000000000000000000000dEaD")

	calldata := RevokeCalldata(spender)
	assert.Equal(t,
		"0x095ea7b3"+
			"000000000000000000000000000000000000000000000000000000000000dead"+
			"0000000000000000000000000000000000000000000000000000000000000000",
		calldata)
}

func TestRevokeCalldataLength(t *testing.T) {
	calldata := RevokeCalldata(common.HexToAddress("0x1"))
	// 0x + 4-byte selector + two 32-byte words.
	assert.Len(t, calldata, 2+2*(4+32+32))
}
