package healthcheck

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/ministake/ministake/internal/logging"
	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/pkg/types"
)

const defaultConcurrency = 4

// SufficiencyChecker sums principal and reward over the active stakes of a
// set of users and compares the total with the ledger's balance. Users whose
// stakes cannot be read fail the check rather than being left out of the sum.
type SufficiencyChecker struct {
	src         Source
	users       []common.Address
	decimals    uint8
	concurrency int
	now         func() time.Time

	mu      sync.Mutex
	reports []UserReport
	summary *SufficiencySummary
}

func NewSufficiencyChecker(src Source, users []common.Address, decimals uint8, concurrency int, now func() time.Time) *SufficiencyChecker {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if now == nil {
		now = time.Now
	}
	return &SufficiencyChecker{
		src:         src,
		users:       dedupe(users),
		decimals:    decimals,
		concurrency: concurrency,
		now:         now,
	}
}

func (c *SufficiencyChecker) Name() string       { return "Multi-user sufficiency" }
func (c *SufficiencyChecker) Category() Category { return CategoryUsers }

// Reports returns the per-user listings gathered by the last Check
func (c *SufficiencyChecker) Reports() []UserReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reports
}

// Summary returns the aggregate from the last Check, or nil
func (c *SufficiencyChecker) Summary() *SufficiencySummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

func (c *SufficiencyChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Name: c.Name(), Category: c.Category()}
	if len(c.users) == 0 {
		result.Status = StatusSkipped
		result.Message = "Sufficiency: no users given"
		result.Details = "pass addresses or set staking.watch_users"
		return result
	}

	stakes, errs := c.fetchStakes(ctx)

	balance, err := c.src.LedgerBalance(ctx)
	if err != nil {
		return failed(result, "Sufficiency: unable to read ledger balance", err)
	}

	var all []types.Stake
	reports := make([]UserReport, len(c.users))
	failures := 0
	for i, user := range c.users {
		if errs[i] != nil {
			failures++
			reports[i] = UserReport{Address: user.Hex(), Error: errs[i].Error()}
			continue
		}
		all = append(all, stakes[i]...)
		reports[i] = c.userReport(user, stakes[i])
	}

	agg := staking.CheckSufficiency(all, balance)
	summary := summarize(agg, len(c.users), c.decimals)

	c.mu.Lock()
	c.reports = reports
	c.summary = summary
	c.mu.Unlock()

	result.Message = fmt.Sprintf("Sufficiency: %d users, %d active stakes, owed %s, ledger holds %s",
		len(c.users), agg.ActiveStakes, summary.Obligation, summary.LedgerBalance)

	switch {
	case failures > 0:
		result.Status = StatusError
		result.Details = fmt.Sprintf("stakes unreadable for %d of %d users; total is incomplete", failures, len(c.users))
	case !agg.Sufficient:
		result.Status = StatusError
		result.Details = fmt.Sprintf("ledger is short by %s", summary.Shortfall)
	default:
		result.Status = StatusOK
	}
	return result
}

// fetchStakes reads every user's stakes concurrently. Errors are recorded
// per user and never cancel the other reads.
func (c *SufficiencyChecker) fetchStakes(ctx context.Context) ([][]types.Stake, []error) {
	stakes := make([][]types.Stake, len(c.users))
	errs := make([]error, len(c.users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, user := range c.users {
		i, user := i, user
		g.Go(func() error {
			s, err := c.src.UserStakes(gctx, user)
			if err != nil {
				logging.Warn("healthcheck: failed to read stakes",
					logging.Component("healthcheck"),
					logging.Address(user.Hex()),
					logging.Err(err))
				errs[i] = err
				return nil
			}
			stakes[i] = s
			return nil
		})
	}
	_ = g.Wait()
	return stakes, errs
}

func (c *SufficiencyChecker) userReport(user common.Address, stakes []types.Stake) UserReport {
	now := c.now()
	r := UserReport{Address: user.Hex(), Stakes: make([]StakeLine, 0, len(stakes))}
	principal, rewards := new(big.Int), new(big.Int)

	for _, s := range stakes {
		total := staking.CalculateStakeTotal(s)
		ledgerPayout := staking.LedgerPayout(s)
		r.Stakes = append(r.Stakes, StakeLine{
			Index:        s.Index,
			Amount:       staking.FormatAmount(total.Original, c.decimals),
			LockPeriod:   s.LockPeriod.Label(),
			Status:       staking.Status(s, now),
			Reward:       staking.FormatAmount(total.Reward, c.decimals),
			Projected:    staking.FormatAmount(total.Total, c.decimals),
			LedgerPayout: staking.FormatAmount(ledgerPayout, c.decimals),
			Diverges:     s.RewardMultiplier != nil && ledgerPayout.Cmp(total.Total) != 0,
			EndTime:      s.End().UTC(),
		})
		if s.Active {
			r.ActiveStakes++
			principal.Add(principal, total.Original)
			rewards.Add(rewards, total.Reward)
		}
	}
	r.Principal = staking.FormatAmount(principal, c.decimals)
	r.Rewards = staking.FormatAmount(rewards, c.decimals)
	return r
}

func dedupe(users []common.Address) []common.Address {
	seen := make(map[common.Address]bool, len(users))
	out := make([]common.Address, 0, len(users))
	for _, u := range users {
		if u == (common.Address{}) || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
