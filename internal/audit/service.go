// Package audit implements the data domain behind the paywall: token
// approval reports fetched from upstream providers, scored with risk
// heuristics, and annotated with ready-to-sign revocation calldata.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kamiyo-ai/risk-auditor/internal/upstream"
)

// ErrInvalidAddress is returned when the audited wallet address is not a
// valid hex address.
var ErrInvalidAddress = errors.New("audit: invalid wallet address")

// Risk levels, ordered by severity.
const (
	RiskCritical = "critical"
	RiskElevated = "elevated"
	RiskInfo     = "info"
)

// Approval is one allowance row as returned by the upstream providers.
type Approval struct {
	Token       string `json:"token"`
	TokenSymbol string `json:"tokenSymbol,omitempty"`
	Spender     string `json:"spender"`
	Allowance   string `json:"allowance"`
	LastUpdated int64  `json:"lastUpdated,omitempty"`
}

// AuditedApproval is an approval row with risk classification and the
// calldata to revoke it. The service only assembles the calldata; signing
// and broadcasting stay with the client.
type AuditedApproval struct {
	Approval
	Risk           string   `json:"risk"`
	RiskReasons    []string `json:"riskReasons,omitempty"`
	RevokeTo       string   `json:"revokeTo"`
	RevokeCalldata string   `json:"revokeCalldata"`
}

// Report is the audit response for one wallet.
type Report struct {
	Address   string            `json:"address"`
	ChainID   int64             `json:"chainId"`
	Approvals []AuditedApproval `json:"approvals"`
	FetchedAt time.Time         `json:"fetchedAt"`
}

// Fetcher is the upstream read the service depends on.
type Fetcher interface {
	Fetch(ctx context.Context, q upstream.Query) ([]byte, error)
}

// Allowances at or above half the uint256 range are treated as unlimited;
// real allowances never come close, but wallets often approve MaxUint256-1.
var unlimitedThreshold = new(big.Int).Lsh(big.NewInt(1), 255)

// Service fetches and scores approval data.
type Service struct {
	fetcher    Fetcher
	staleAfter time.Duration
	log        *zap.Logger
	now        func() time.Time
}

// NewService creates an audit service. staleAfter is the age past which an
// approval is flagged as stale.
func NewService(fetcher Fetcher, staleAfter time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		fetcher:    fetcher,
		staleAfter: staleAfter,
		log:        log,
		now:        time.Now,
	}
}

// Audit builds the approval report for the given wallet.
func (s *Service) Audit(ctx context.Context, address string, chainID int64) (*Report, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	normalized := strings.ToLower(common.HexToAddress(address).Hex())

	raw, err := s.fetcher.Fetch(ctx, upstream.Query{
		Resource: "approval-audit",
		Params: map[string]string{
			"address": normalized,
			"chainId": strconv.FormatInt(chainID, 10),
		},
	})
	if err != nil {
		return nil, err
	}

	var rows []Approval
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode upstream payload: %w", err)
	}

	report := &Report{
		Address:   normalized,
		ChainID:   chainID,
		Approvals: make([]AuditedApproval, 0, len(rows)),
		FetchedAt: s.now().UTC(),
	}
	for _, row := range rows {
		report.Approvals = append(report.Approvals, s.score(row))
	}
	return report, nil
}

// score applies the risk heuristics to one approval row.
func (s *Service) score(row Approval) AuditedApproval {
	risk := RiskInfo
	var reasons []string

	if allowance, ok := new(big.Int).SetString(row.Allowance, 10); ok {
		if allowance.Cmp(unlimitedThreshold) >= 0 {
			risk = RiskCritical
			reasons = append(reasons, "unlimited allowance")
		}
	} else {
		s.log.Warn("unparseable allowance in upstream row",
			zap.String("token", row.Token),
			zap.String("allowance", row.Allowance))
	}

	if row.LastUpdated > 0 && s.now().Sub(time.Unix(row.LastUpdated, 0)) > s.staleAfter {
		if risk == RiskInfo {
			risk = RiskElevated
		}
		reasons = append(reasons, "stale approval")
	}

	audited := AuditedApproval{
		Approval:    row,
		Risk:        risk,
		RiskReasons: reasons,
	}
	if common.IsHexAddress(row.Token) && common.IsHexAddress(row.Spender) {
		audited.RevokeTo = common.HexToAddress(row.Token).Hex()
		audited.RevokeCalldata = RevokeCalldata(common.HexToAddress(row.Spender))
	}
	return audited
}
