package healthcheck

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	styleBold    = lipgloss.NewStyle().Bold(true)
)

// Output writes the text form of a report
type Output struct {
	writer    io.Writer
	useColors bool
}

// NewOutput creates a new Output instance
func NewOutput(w io.Writer, useColors bool) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{writer: w, useColors: useColors}
}

// Header prints the report header
func (o *Output) Header() {
	o.println("")
	o.println(o.paint(styleBold, "Ministake Health Check"))
	o.println(strings.Repeat("=", 22))
	o.println("")
}

// CheckStart prints the start of a check
func (o *Output) CheckStart(index, total int, name string) {
	o.printf("[%d/%d] Checking %s...\n", index, total, name)
}

// CheckResult prints the result of a check
func (o *Output) CheckResult(result CheckResult) {
	icon, style := "-", styleDim
	switch result.Status {
	case StatusOK:
		icon, style = "✓", styleOK
	case StatusWarning:
		icon, style = "!", styleWarning
	case StatusError:
		icon, style = "✗", styleError
	}
	o.printf("  %s %s\n", o.paint(style, icon), result.Message)
	if result.Details != "" {
		o.printf("    %s\n", result.Details)
	}
}

// User prints one user's stake listing
func (o *Output) User(u UserReport) {
	o.println("")
	o.println(o.paint(styleBold, u.Address))
	if u.Error != "" {
		o.printf("  %s %s\n", o.paint(styleError, "✗"), u.Error)
		return
	}
	if len(u.Stakes) == 0 {
		o.println(o.paint(styleDim, "  no stakes"))
		return
	}
	o.printf("  %-3s %-14s %-10s %-18s %-14s %-14s %s\n",
		"#", "Amount", "Lock", "Status", "Projected", "Ledger payout", "Ends")
	for _, s := range u.Stakes {
		payout := s.LedgerPayout
		if s.Diverges {
			payout = o.paint(styleWarning, payout+"*")
		}
		o.printf("  %-3d %-14s %-10s %-18s %-14s %-14s %s\n",
			s.Index, s.Amount, s.LockPeriod, s.Status, s.Projected, payout,
			s.EndTime.Format("2006-01-02 15:04:05"))
	}
	o.printf("  active: %d, principal %s, rewards %s\n", u.ActiveStakes, u.Principal, u.Rewards)
}

// Summary prints the summary at the end
func (o *Output) Summary(summary Summary) {
	o.println("")
	o.printf("Summary: %s, ", o.paint(styleOK, fmt.Sprintf("%d passed", summary.Passed)))
	if summary.Failed > 0 {
		o.printf("%s", o.paint(styleError, fmt.Sprintf("%d failed", summary.Failed)))
	} else {
		o.printf("0 failed")
	}
	if summary.Warned > 0 {
		o.printf(", %s", o.paint(styleWarning, fmt.Sprintf("%d warnings", summary.Warned)))
	}
	if summary.Skipped > 0 {
		o.printf(", %d skipped", summary.Skipped)
	}
	o.println("")
}

func (o *Output) paint(s lipgloss.Style, text string) string {
	if !o.useColors {
		return text
	}
	return s.Render(text)
}

func (o *Output) println(s string) {
	fmt.Fprintln(o.writer, s)
}

func (o *Output) printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}
