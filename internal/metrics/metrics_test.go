package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/pkg/types"
)

func TestSummary(t *testing.T) {
	c := NewCollector(18)
	c.ObserveRead("stakes", time.Millisecond, nil)
	c.ObserveRead("stakes", time.Millisecond, nil)
	c.ObserveRead("stakes", time.Millisecond, errors.New("x"))
	c.ObserveWrite(types.OpStake, types.TxStatusSuccess, time.Second)
	c.DebugEvent(staking.EventMismatch)
	c.StakeMatured()

	s, err := c.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Reads["stakes/ok"] != 2 || s.Reads["stakes/error"] != 1 {
		t.Errorf("unexpected reads %v", s.Reads)
	}
	if s.Writes["stake/success"] != 1 {
		t.Errorf("unexpected writes %v", s.Writes)
	}
	if s.DebugEvents[staking.EventMismatch] != 1 {
		t.Errorf("unexpected debug events %v", s.DebugEvents)
	}
	if s.StakesMatured != 1 {
		t.Errorf("expected 1 maturity, got %d", s.StakesMatured)
	}
	if s.LedgerSufficient != nil {
		t.Error("sufficiency should be absent before the first check")
	}

	c.SetSufficiency(tokens(1), tokens(1), true)
	s, _ = c.Summary()
	if s.LedgerSufficient == nil || !*s.LedgerSufficient {
		t.Error("expected ledger_sufficient=true")
	}

	data, err := s.JSON()
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("summary JSON invalid: %v", err)
	}
	if _, ok := decoded["writes"]; !ok {
		t.Error("expected writes key in JSON")
	}
}

func TestKeys(t *testing.T) {
	got := Keys(map[string]uint64{"b": 1, "a": 2, "c": 3})
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("expected sorted keys, got %v", got)
	}
}

func TestServe(t *testing.T) {
	// Reserve a free port, then hand it to Serve.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewCollector(18)
	c.StakeMatured()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, c) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "ministake_stakes_matured_total 1") {
		t.Errorf("expected maturity counter in output")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestServeBadAddress(t *testing.T) {
	if err := Serve(context.Background(), "256.0.0.1:bad", NewCollector(18)); err == nil {
		t.Error("expected listen error")
	}
}
