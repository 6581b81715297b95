package staking

import (
	"math/big"
	"strings"
	"time"

	"github.com/ministake/ministake/pkg/types"
)

// Field identifies one independently refreshable part of the read-model.
type Field uint8

const (
	FieldTokenBalance Field = 1 << iota
	FieldAllowance
	FieldStakes
	FieldLedgerBalance

	FieldNone Field = 0
	FieldAll        = FieldTokenBalance | FieldAllowance | FieldStakes | FieldLedgerBalance
)

var fieldNames = []struct {
	f    Field
	name string
}{
	{FieldTokenBalance, "token_balance"},
	{FieldAllowance, "allowance"},
	{FieldStakes, "stakes"},
	{FieldLedgerBalance, "ledger_balance"},
}

// Has reports whether every bit of o is set in f
func (f Field) Has(o Field) bool {
	return o != 0 && f&o == o
}

// Each calls fn for every single field contained in f
func (f Field) Each(fn func(Field)) {
	for _, n := range fieldNames {
		if f.Has(n.f) {
			fn(n.f)
		}
	}
}

func (f Field) String() string {
	if f == FieldNone {
		return "none"
	}
	var parts []string
	for _, n := range fieldNames {
		if f.Has(n.f) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// Snapshot is an immutable view of the read-model. The Reader replaces it
// wholesale on every change; nothing mutates a published Snapshot.
type Snapshot struct {
	TokenBalance  *big.Int
	Allowance     *big.Int
	Stakes        []types.Stake
	LedgerBalance *big.Int

	// Loaded records which fields have been read successfully at least once.
	Loaded    Field
	UpdatedAt time.Time
}

// Stake returns the stake at index, if known
func (s *Snapshot) Stake(index int) (types.Stake, bool) {
	if s == nil || index < 0 || index >= len(s.Stakes) {
		return types.Stake{}, false
	}
	return s.Stakes[index], true
}

// Sufficiency runs the balance check over this snapshot
func (s *Snapshot) Sufficiency() SufficiencyReport {
	if s == nil {
		return CheckSufficiency(nil, nil)
	}
	return CheckSufficiency(s.Stakes, s.LedgerBalance)
}

func (s *Snapshot) clone() *Snapshot {
	c := *s
	return &c
}

// diff returns the fields whose values differ between s and o.
func (s *Snapshot) diff(o *Snapshot) Field {
	var changed Field
	if !sameInt(s.TokenBalance, o.TokenBalance) {
		changed |= FieldTokenBalance
	}
	if !sameInt(s.Allowance, o.Allowance) {
		changed |= FieldAllowance
	}
	if !types.StakesEqual(s.Stakes, o.Stakes) {
		changed |= FieldStakes
	}
	if !sameInt(s.LedgerBalance, o.LedgerBalance) {
		changed |= FieldLedgerBalance
	}
	return changed
}

func sameInt(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}
