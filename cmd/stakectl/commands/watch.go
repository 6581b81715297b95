package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ministake/ministake/internal/config"
	"github.com/ministake/ministake/internal/ledger"
	"github.com/ministake/ministake/internal/logging"
	"github.com/ministake/ministake/internal/metrics"
	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/internal/util"
)

func NewWatchCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow balances and stakes until interrupted",
		Long: `Poll the ledger, print every change to balances and stakes, announce
stakes as they mature and reconcile WithdrawDebug events against the
local reward calculation. Stop with Ctrl+C.

When metrics are enabled (metrics.enabled or --metrics-addr), Prometheus
metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return runWatch(ctx, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func runWatch(ctx context.Context, metricsAddr string) error {
	cfg := currentConfig()
	if metricsAddr == "" && cfg.Metrics.Enabled {
		metricsAddr = cfg.Metrics.ListenAddr
	}

	sessionCfg := cfg.Staking.SessionConfig()
	var collector *metrics.Collector
	if metricsAddr != "" {
		collector = metrics.NewCollector(cfg.Staking.TokenDecimals)
		sessionCfg.Metrics = collector
	}

	a, err := openApp(ctx, false, sessionCfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.session.Reader.Subscribe(func(snap *staking.Snapshot, changed staking.Field) {
		a.printChange(snap, changed)
	})
	a.session.Scheduler.OnMatured(func(m staking.Maturity) {
		Success(fmt.Sprintf("Stake #%d matured: %s ready to withdraw (stakectl withdraw %d)",
			m.Stake.Index, a.tokens(staking.TotalProjected(m.Stake)), m.Stake.Index))
	})

	ew := ledger.NewEventWatcher(a.ledger, a.ledger.Account())
	if err := ew.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event watcher: %w", err)
	}
	defer ew.Stop()

	if collector != nil {
		util.SafeGoWithName("metrics-server", func() {
			if err := metrics.Serve(ctx, metricsAddr, collector); err != nil {
				logging.Error("metrics server failed", logging.Component("metrics"), logging.Err(err))
			}
		})
	}

	if !cfg.Mock {
		util.SafeGoWithName("config-watcher", func() {
			err := config.Watch(ctx, configPath(), func(next *config.Config) {
				level, err := logging.ParseLevel(next.Log.Level)
				if err != nil {
					return
				}
				logging.SetLevel(level)
				logging.Info("configuration reloaded", logging.Component("config"), "log_level", next.Log.Level)
			})
			if err != nil {
				logging.Warn("config reload disabled", logging.Component("config"), logging.Err(err))
			}
		})
	}

	a.session.Start(ctx, ew.Events())
	if _, err := a.session.Reader.Refresh(ctx, staking.FieldAll); err != nil {
		Warning("Initial read incomplete: " + err.Error())
	}

	Info(fmt.Sprintf("Watching %s (Ctrl+C to stop)", a.session.Reader.Owner().Hex()))
	<-ctx.Done()

	// The observer reads from the watcher's channel; stop it first.
	a.session.Stop()
	if obs := a.session.Observer; obs.Count() > 0 {
		Info(fmt.Sprintf("Reconciled %d WithdrawDebug events", obs.Count()))
	}
	return nil
}

// printChange prints the fields that changed in one refresh
func (a *app) printChange(snap *staking.Snapshot, changed staking.Field) {
	stamp := snap.UpdatedAt.Local().Format(time.TimeOnly)
	changed.Each(func(f staking.Field) {
		switch f {
		case staking.FieldTokenBalance:
			fmt.Printf("%s  balance         %s\n", stamp, a.tokens(snap.TokenBalance))
		case staking.FieldAllowance:
			fmt.Printf("%s  allowance       %s\n", stamp, a.tokens(snap.Allowance))
		case staking.FieldLedgerBalance:
			fmt.Printf("%s  ledger balance  %s\n", stamp, a.tokens(snap.LedgerBalance))
		case staking.FieldStakes:
			fmt.Printf("%s  stakes          %d active, %s staked\n", stamp,
				countActive(snap), a.tokens(staking.TotalStaked(snap.Stakes, staking.ActiveOnly)))
			if r := snap.Sufficiency(); !r.Sufficient {
				Warning(fmt.Sprintf("Ledger balance is short of obligations by %s", a.tokens(r.Shortfall())))
			}
		}
	})
}

func countActive(snap *staking.Snapshot) int {
	n := 0
	for _, s := range snap.Stakes {
		if s.Active {
			n++
		}
	}
	return n
}
