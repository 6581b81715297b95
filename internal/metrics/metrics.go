package metrics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is a compact JSON view of the collected metrics, printed by the
// CLI on shutdown and by `status --json`.
type Summary struct {
	Uptime           string            `json:"uptime"`
	Reads            map[string]uint64 `json:"reads"`        // field/result -> count
	Writes           map[string]uint64 `json:"writes"`       // op/status -> count
	DebugEvents      map[string]uint64 `json:"debug_events"` // outcome -> count
	StakesMatured    uint64            `json:"stakes_matured"`
	LedgerSufficient *bool             `json:"ledger_sufficient,omitempty"`
	CollectedAt      time.Time         `json:"collected_at"`
}

// Summary gathers the registry and folds it into a Summary
func (c *Collector) Summary() (*Summary, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	s := &Summary{
		Uptime:      time.Since(c.startTime).Round(time.Second).String(),
		Reads:       make(map[string]uint64),
		Writes:      make(map[string]uint64),
		DebugEvents: make(map[string]uint64),
		CollectedAt: time.Now(),
	}
	for _, mf := range families {
		switch mf.GetName() {
		case namespace + "_reads_total":
			fold(s.Reads, mf, "field", "result")
		case namespace + "_writes_total":
			fold(s.Writes, mf, "op", "status")
		case namespace + "_withdraw_debug_events_total":
			fold(s.DebugEvents, mf, "outcome")
		case namespace + "_stakes_matured_total":
			for _, m := range mf.GetMetric() {
				s.StakesMatured += uint64(m.GetCounter().GetValue())
			}
		case namespace + "_ledger_sufficient":
			if !c.reported.Load() {
				continue
			}
			for _, m := range mf.GetMetric() {
				ok := m.GetGauge().GetValue() == 1
				s.LedgerSufficient = &ok
			}
		}
	}
	return s, nil
}

// JSON returns the summary as JSON
func (s *Summary) JSON() ([]byte, error) {
	return json.Marshal(s)
}

// fold adds each counter of mf to out under the joined label values
func fold(out map[string]uint64, mf *dto.MetricFamily, labels ...string) {
	for _, m := range mf.GetMetric() {
		values := make([]string, 0, len(labels))
		for _, name := range labels {
			values = append(values, labelValue(m, name))
		}
		out[strings.Join(values, "/")] += uint64(m.GetCounter().GetValue())
	}
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// Keys returns the sorted keys of a summary map
func Keys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
