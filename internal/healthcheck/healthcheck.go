package healthcheck

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/ministake/ministake/pkg/types"
)

// HealthCheck runs the diagnostic checks against a ledger
type HealthCheck struct {
	checkers    []Checker
	sufficiency *SufficiencyChecker
	output      *Output
	writer      io.Writer
	options     Options
}

// New creates a health check writing to w with the default checkers
func New(src Source, opts Options, w io.Writer, useColors bool) *HealthCheck {
	if w == nil {
		w = os.Stdout
	}
	h := &HealthCheck{
		options: opts,
		writer:  w,
		output:  NewOutput(w, useColors && !opts.JSON),
	}
	h.registerDefaultCheckers(src)
	return h
}

func (h *HealthCheck) registerDefaultCheckers(src Source) {
	d := h.options.Decimals
	h.checkers = []Checker{
		NewTokenMetadataChecker(src, d),
		NewLedgerBalanceChecker(src, d),
		NewTreasuryChecker(src, d),
		NewTotalDistributedChecker(src, d),
		NewRewardTokenChecker(src),
	}
	for _, p := range types.LockPeriods {
		h.checkers = append(h.checkers, NewLockPeriodChecker(src, p))
	}
	h.sufficiency = NewSufficiencyChecker(src, h.options.Users, d, h.options.Concurrency, h.options.Now)
	h.checkers = append(h.checkers, h.sufficiency)
}

// AddChecker adds a custom checker
func (h *HealthCheck) AddChecker(c Checker) {
	h.checkers = append(h.checkers, c)
}

// Run executes the checks and writes the report
func (h *HealthCheck) Run(ctx context.Context) (*Report, error) {
	checkers := h.filterCheckers()
	report := &Report{Checks: make([]CheckResult, 0, len(checkers))}

	if !h.options.JSON {
		h.output.Header()
	}
	for i, checker := range checkers {
		if !h.options.JSON {
			h.output.CheckStart(i+1, len(checkers), checker.Name())
		}
		result := checker.Check(ctx)
		report.Checks = append(report.Checks, result)
		report.Summary.add(result)
		if !h.options.JSON {
			h.output.CheckResult(result)
		}
		if checker == Checker(h.sufficiency) {
			report.Users = h.sufficiency.Reports()
			report.Sufficiency = h.sufficiency.Summary()
		}
	}

	if h.options.JSON {
		enc := json.NewEncoder(h.writer)
		enc.SetIndent("", "  ")
		return report, enc.Encode(report)
	}

	for _, u := range report.Users {
		h.output.User(u)
	}
	h.output.Summary(report.Summary)
	return report, nil
}

func (h *HealthCheck) filterCheckers() []Checker {
	if h.options.Category == "" {
		return h.checkers
	}
	filtered := make([]Checker, 0)
	for _, c := range h.checkers {
		if c.Category() == h.options.Category {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// ParseCategory validates a category name from the command line
func ParseCategory(s string) (Category, bool) {
	switch c := Category(s); c {
	case "", CategoryToken, CategoryLedger, CategoryConfig, CategoryUsers:
		return c, true
	}
	return "", false
}
