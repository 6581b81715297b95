package healthcheck

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/pkg/types"
)

// Category groups related checks
type Category string

const (
	CategoryToken  Category = "token"
	CategoryLedger Category = "ledger"
	CategoryConfig Category = "config"
	CategoryUsers  Category = "users"
)

// Status is the outcome of a single check
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// CheckResult is the result of a single check
type CheckResult struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Status   Status   `json:"status"`
	Message  string   `json:"message"`
	Details  string   `json:"details,omitempty"`
}

// Checker is implemented by every health check
type Checker interface {
	// Name returns the display name of the checker
	Name() string
	// Category returns the category this checker belongs to
	Category() Category
	// Check performs the check and returns the result
	Check(ctx context.Context) CheckResult
}

// Source is the read surface the health check consumes. *ledger.Ledger
// satisfies it.
type Source interface {
	TokenAddress() common.Address
	StakingAddress() common.Address
	Symbol(ctx context.Context) (string, error)
	Decimals(ctx context.Context) (uint8, error)
	TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	LedgerBalance(ctx context.Context) (*big.Int, error)
	UserStakes(ctx context.Context, owner common.Address) ([]types.Stake, error)
	LockPeriodDuration(ctx context.Context, p types.LockPeriod) (time.Duration, error)
	Multiplier(ctx context.Context, p types.LockPeriod) (*big.Int, error)
	TreasuryWallet(ctx context.Context) (common.Address, error)
	RewardToken(ctx context.Context) (common.Address, error)
	TotalDistributed(ctx context.Context) (*big.Int, error)
}

// Options configures a health check run
type Options struct {
	// JSON writes the report as JSON instead of text
	JSON bool
	// Category filters checks to a single category
	Category Category
	// Users are the stakers whose obligations are summed
	Users []common.Address
	// Decimals is the expected token decimals
	Decimals uint8
	// Concurrency bounds parallel per-user reads. Zero means 4.
	Concurrency int
	Now         func() time.Time
}

// StakeLine is one stake in a user listing. Projected uses the local
// multiplier table and LedgerPayout the multiplier stored on the stake.
type StakeLine struct {
	Index        int               `json:"index"`
	Amount       string            `json:"amount"`
	LockPeriod   string            `json:"lock_period"`
	Status       types.StakeStatus `json:"status"`
	Reward       string            `json:"reward"`
	Projected    string            `json:"projected_total"`
	LedgerPayout string            `json:"ledger_payout"`
	Diverges     bool              `json:"diverges"`
	EndTime      time.Time         `json:"end_time"`
}

// UserReport lists one user's stakes
type UserReport struct {
	Address      string      `json:"address"`
	Stakes       []StakeLine `json:"stakes"`
	ActiveStakes int         `json:"active_stakes"`
	Principal    string      `json:"principal"`
	Rewards      string      `json:"rewards"`
	Error        string      `json:"error,omitempty"`
}

// SufficiencySummary is the multi-user sufficiency outcome
type SufficiencySummary struct {
	Users         int    `json:"users"`
	ActiveStakes  int    `json:"active_stakes"`
	Obligation    string `json:"obligation"`
	LedgerBalance string `json:"ledger_balance"`
	Shortfall     string `json:"shortfall,omitempty"`
	Sufficient    bool   `json:"sufficient"`
}

// Report is the complete result of a run
type Report struct {
	Checks      []CheckResult       `json:"checks"`
	Users       []UserReport        `json:"users,omitempty"`
	Sufficiency *SufficiencySummary `json:"sufficiency,omitempty"`
	Summary     Summary             `json:"summary"`
}

// Summary counts results by status
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Warned  int `json:"warned"`
	Skipped int `json:"skipped"`
}

// IsHealthy returns true if no check failed
func (s Summary) IsHealthy() bool {
	return s.Failed == 0
}

func (s *Summary) add(r CheckResult) {
	s.Total++
	switch r.Status {
	case StatusOK:
		s.Passed++
	case StatusError:
		s.Failed++
	case StatusWarning:
		s.Warned++
	case StatusSkipped:
		s.Skipped++
	}
}

func summarize(r staking.SufficiencyReport, users int, decimals uint8) *SufficiencySummary {
	s := &SufficiencySummary{
		Users:         users,
		ActiveStakes:  r.ActiveStakes,
		Obligation:    staking.FormatAmount(r.TotalObligation, decimals),
		LedgerBalance: staking.FormatAmount(r.LedgerBalance, decimals),
		Sufficient:    r.Sufficient,
	}
	if !r.Sufficient {
		s.Shortfall = staking.FormatAmount(r.Shortfall(), decimals)
	}
	return s
}
