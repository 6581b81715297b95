package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/pkg/types"
)

// stakeView is one row of the stakes table
type stakeView struct {
	Index       int               `json:"index"`
	Amount      string            `json:"amount"`
	LockPeriod  string            `json:"lock_period"`
	Status      types.StakeStatus `json:"status"`
	Reward      string            `json:"reward"`
	Total       string            `json:"total"`
	EndTime     time.Time         `json:"end_time"`
	ReadyIn     string            `json:"ready_in,omitempty"`
	CanWithdraw bool              `json:"can_withdraw"`
}

// statusView is the JSON form of `stakectl status`
type statusView struct {
	Account       string      `json:"account"`
	Mock          bool        `json:"mock"`
	TokenBalance  string      `json:"token_balance"`
	Allowance     string      `json:"allowance"`
	LedgerBalance string      `json:"ledger_balance"`
	TotalStaked   string      `json:"total_staked_active"`
	Obligation    string      `json:"obligation"`
	Sufficient    bool        `json:"sufficient"`
	Stakes        []stakeView `json:"stakes"`
}

func NewStatusCmd() *cobra.Command {
	var showAll, jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show balances, allowance and stakes",
		Long: `Show the account's token balance, the allowance granted to the staking
contract, the contract's token balance and every active stake.

Examples:
  stakectl status          # Active stakes
  stakectl status --all    # Include withdrawn stakes
  stakectl status --json   # Machine-readable output`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx, false, currentConfig().Staking.SessionConfig())
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.status(ctx, showAll, time.Now())
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			printStatus(view)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showAll, "all", false, "Include withdrawn stakes")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func (a *app) status(ctx context.Context, showAll bool, now time.Time) (*statusView, error) {
	reader := a.session.Reader
	if _, err := reader.Refresh(ctx, staking.FieldAll); err != nil {
		snap := reader.Snapshot()
		if snap == nil || snap.Loaded == staking.FieldNone {
			return nil, fmt.Errorf("failed to read ledger: %w", err)
		}
		Warning("Some reads failed; showing what was read: " + err.Error())
	}
	snap := reader.Snapshot()
	suff := snap.Sufficiency()

	view := &statusView{
		Account:       reader.Owner().Hex(),
		Mock:          a.ledger.IsMock(),
		TokenBalance:  a.tokens(snap.TokenBalance),
		Allowance:     a.tokens(snap.Allowance),
		LedgerBalance: a.tokens(snap.LedgerBalance),
		TotalStaked:   a.tokens(staking.TotalStaked(snap.Stakes, staking.ActiveOnly)),
		Obligation:    a.tokens(suff.TotalObligation),
		Sufficient:    suff.Sufficient,
		Stakes:        make([]stakeView, 0, len(snap.Stakes)),
	}
	for _, s := range snap.Stakes {
		if !s.Active && !showAll {
			continue
		}
		view.Stakes = append(view.Stakes, a.stakeView(s, now))
	}
	return view, nil
}

func (a *app) stakeView(s types.Stake, now time.Time) stakeView {
	total := staking.CalculateStakeTotal(s)
	v := stakeView{
		Index:       s.Index,
		Amount:      a.tokens(total.Original),
		LockPeriod:  s.LockPeriod.Label(),
		Status:      staking.Status(s, now),
		Reward:      a.tokens(total.Reward),
		Total:       a.tokens(total.Total),
		EndTime:     s.End(),
		CanWithdraw: staking.ReadyForNormalWithdrawal(s, now),
	}
	if d := staking.TimeUntilReady(s, now); d > 0 {
		v.ReadyIn = d.Round(time.Second).String()
	}
	return v
}

func printStatus(v *statusView) {
	title := "Account"
	if v.Mock {
		title = "Account (mock ledger)"
	}
	fmt.Println(StatusBox(title, [][2]string{
		{"Address", v.Account},
		{"Balance", v.TokenBalance},
		{"Allowance", v.Allowance},
		{"Staked (active)", v.TotalStaked},
	}))

	suff := "sufficient"
	if !v.Sufficient {
		suff = "insufficient"
	}
	fmt.Println(StatusBox("Ledger", [][2]string{
		{"Balance", v.LedgerBalance},
		{"Owed to you", v.Obligation},
		{"Coverage", StatusBadge(suff)},
	}))

	fmt.Println(SectionHeader("Stakes"))
	if len(v.Stakes) == 0 {
		fmt.Println(Hint("No stakes. Create one with: stakectl stake <amount> --lock 0|1|2"))
		return
	}
	rows := make([][]string, 0, len(v.Stakes))
	for _, s := range v.Stakes {
		ends := s.EndTime.Local().Format("2006-01-02 15:04:05")
		if s.ReadyIn != "" {
			ends += " (in " + s.ReadyIn + ")"
		}
		rows = append(rows, []string{
			strconv.Itoa(s.Index),
			s.Amount,
			s.LockPeriod,
			StatusBadge(string(s.Status)),
			s.Reward,
			s.Total,
			ends,
		})
	}
	fmt.Println(RenderTable([]string{"#", "Amount", "Lock", "Status", "Reward", "Total", "Ends"}, rows))
}
