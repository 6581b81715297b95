package healthcheck

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/pkg/types"
)

// TokenMetadataChecker reads the token's symbol and decimals
type TokenMetadataChecker struct {
	src      Source
	expected uint8
}

func NewTokenMetadataChecker(src Source, expectedDecimals uint8) *TokenMetadataChecker {
	return &TokenMetadataChecker{src: src, expected: expectedDecimals}
}

func (c *TokenMetadataChecker) Name() string       { return "Token metadata" }
func (c *TokenMetadataChecker) Category() Category { return CategoryToken }

func (c *TokenMetadataChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Name: c.Name(), Category: c.Category()}

	symbol, err := c.src.Symbol(ctx)
	if err != nil {
		return failed(result, "Token: unable to read symbol", err)
	}
	decimals, err := c.src.Decimals(ctx)
	if err != nil {
		return failed(result, "Token: unable to read decimals", err)
	}

	result.Message = fmt.Sprintf("Token: %s, %d decimals (%s)", symbol, decimals, c.src.TokenAddress().Hex())
	if decimals != c.expected {
		result.Status = StatusWarning
		result.Details = fmt.Sprintf("configured token_decimals is %d; amounts will be scaled wrongly", c.expected)
		return result
	}
	result.Status = StatusOK
	return result
}

// LedgerBalanceChecker reads the staking contract's token holdings
type LedgerBalanceChecker struct {
	src      Source
	decimals uint8
}

func NewLedgerBalanceChecker(src Source, decimals uint8) *LedgerBalanceChecker {
	return &LedgerBalanceChecker{src: src, decimals: decimals}
}

func (c *LedgerBalanceChecker) Name() string       { return "Ledger balance" }
func (c *LedgerBalanceChecker) Category() Category { return CategoryLedger }

func (c *LedgerBalanceChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Name: c.Name(), Category: c.Category()}

	balance, err := c.src.LedgerBalance(ctx)
	if err != nil {
		return failed(result, "Ledger balance: unable to read", err)
	}
	result.Message = fmt.Sprintf("Ledger balance: %s (%s)",
		staking.FormatAmount(balance, c.decimals), c.src.StakingAddress().Hex())
	if balance.Sign() == 0 {
		result.Status = StatusWarning
		result.Details = "the staking contract holds no tokens; no withdrawal can be paid"
		return result
	}
	result.Status = StatusOK
	return result
}

// LockPeriodChecker compares one lock period's duration and multiplier on the
// ledger with the values the client assumes.
type LockPeriodChecker struct {
	src    Source
	period types.LockPeriod
}

func NewLockPeriodChecker(src Source, p types.LockPeriod) *LockPeriodChecker {
	return &LockPeriodChecker{src: src, period: p}
}

func (c *LockPeriodChecker) Name() string {
	return fmt.Sprintf("Lock period %d", c.period)
}

func (c *LockPeriodChecker) Category() Category { return CategoryConfig }

func (c *LockPeriodChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Name: c.Name(), Category: c.Category()}

	d, err := c.src.LockPeriodDuration(ctx, c.period)
	if err != nil {
		return failed(result, fmt.Sprintf("Lock period %d: unable to read duration", c.period), err)
	}
	m, err := c.src.Multiplier(ctx, c.period)
	if err != nil {
		return failed(result, fmt.Sprintf("Lock period %d: unable to read multiplier", c.period), err)
	}

	local := staking.MultiplierFor(c.period)
	result.Message = fmt.Sprintf("Lock period %d: %s, multiplier %s",
		c.period, d, staking.FormatAmount(m, staking.DefaultDecimals))

	var mismatches []string
	if d != c.period.Duration() {
		mismatches = append(mismatches, fmt.Sprintf("duration %s, expected %s", d, c.period.Duration()))
	}
	if m.Cmp(local) != 0 {
		mismatches = append(mismatches, fmt.Sprintf("multiplier %s, expected %s",
			staking.FormatAmount(m, staking.DefaultDecimals),
			staking.FormatAmount(local, staking.DefaultDecimals)))
	}
	if len(mismatches) > 0 {
		result.Status = StatusWarning
		result.Details = fmt.Sprintf("ledger differs from client: %v", mismatches)
		return result
	}
	result.Status = StatusOK
	return result
}

// TreasuryChecker reads the penalty recipient and its token balance
type TreasuryChecker struct {
	src      Source
	decimals uint8
}

func NewTreasuryChecker(src Source, decimals uint8) *TreasuryChecker {
	return &TreasuryChecker{src: src, decimals: decimals}
}

func (c *TreasuryChecker) Name() string       { return "Treasury" }
func (c *TreasuryChecker) Category() Category { return CategoryLedger }

func (c *TreasuryChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Name: c.Name(), Category: c.Category()}

	treasury, err := c.src.TreasuryWallet(ctx)
	if err != nil {
		return failed(result, "Treasury: unable to read address", err)
	}
	if treasury == (common.Address{}) {
		result.Status = StatusWarning
		result.Message = "Treasury: not set"
		result.Details = "emergency withdrawal penalties have no recipient"
		return result
	}
	balance, err := c.src.TokenBalance(ctx, treasury)
	if err != nil {
		return failed(result, "Treasury: unable to read balance", err)
	}
	result.Status = StatusOK
	result.Message = fmt.Sprintf("Treasury: %s holds %s", treasury.Hex(), staking.FormatAmount(balance, c.decimals))
	return result
}

// RewardTokenChecker verifies the staking contract pays in the configured token
type RewardTokenChecker struct {
	src Source
}

func NewRewardTokenChecker(src Source) *RewardTokenChecker {
	return &RewardTokenChecker{src: src}
}

func (c *RewardTokenChecker) Name() string       { return "Reward token" }
func (c *RewardTokenChecker) Category() Category { return CategoryConfig }

func (c *RewardTokenChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Name: c.Name(), Category: c.Category()}

	addr, err := c.src.RewardToken(ctx)
	if err != nil {
		return failed(result, "Reward token: unable to read", err)
	}
	if addr != c.src.TokenAddress() {
		result.Status = StatusError
		result.Message = fmt.Sprintf("Reward token: %s", addr.Hex())
		result.Details = fmt.Sprintf("configured token_address is %s", c.src.TokenAddress().Hex())
		return result
	}
	result.Status = StatusOK
	result.Message = fmt.Sprintf("Reward token: %s matches configuration", addr.Hex())
	return result
}

// TotalDistributedChecker reports the rewards the ledger has paid so far
type TotalDistributedChecker struct {
	src      Source
	decimals uint8
}

func NewTotalDistributedChecker(src Source, decimals uint8) *TotalDistributedChecker {
	return &TotalDistributedChecker{src: src, decimals: decimals}
}

func (c *TotalDistributedChecker) Name() string       { return "Total distributed" }
func (c *TotalDistributedChecker) Category() Category { return CategoryLedger }

func (c *TotalDistributedChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{Name: c.Name(), Category: c.Category()}

	v, err := c.src.TotalDistributed(ctx)
	if err != nil {
		return failed(result, "Total distributed: unable to read", err)
	}
	result.Status = StatusOK
	result.Message = fmt.Sprintf("Total distributed: %s", staking.FormatAmount(v, c.decimals))
	return result
}

func failed(result CheckResult, msg string, err error) CheckResult {
	result.Status = StatusError
	result.Message = msg
	result.Details = err.Error()
	return result
}
