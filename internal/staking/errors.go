package staking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ministake/ministake/pkg/types"
)

// Validation errors. These are detected before anything is sent to the ledger.
var (
	ErrNoAccount             = errors.New("no wallet account connected")
	ErrInvalidAmount         = errors.New("amount must be a positive number")
	ErrInvalidLockPeriod     = errors.New("lock period must be 0, 1 or 2")
	ErrInsufficientAllowance = errors.New("allowance is lower than the stake amount")
	ErrStakeNotFound         = errors.New("stake not found")
	ErrStakeInactive         = errors.New("stake already withdrawn")
	ErrStakeLocked           = errors.New("stake is still locked")
)

// Orchestration and remote errors.
var (
	ErrWithdrawalInFlight  = errors.New("another withdrawal is already in progress")
	ErrWriteInFlight       = errors.New("another transaction is already in progress")
	ErrUserRejected        = errors.New("transaction rejected by user")
	ErrConfirmationTimeout = errors.New("timed out waiting for confirmation")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrIncompleteEvent     = errors.New("incomplete WithdrawDebug event")
)

// ValidationError is returned when a write fails its preconditions.
type ValidationError struct {
	Op  types.Operation
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(op types.Operation, err error) error {
	return &ValidationError{Op: op, Err: err}
}

// IsValidationError reports whether err failed a precondition check
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// rejectionMarkers are the phrases signers use when the user declines.
var rejectionMarkers = []string{"user rejected", "user denied", "rejected by user"}

// IsUserRejection reports whether err means the user declined to sign
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range rejectionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// ClassifyError maps a failed operation to the message shown to the user.
func ClassifyError(op types.Operation, err error) string {
	var ve *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount):
		return "Please enter a valid amount greater than 0."
	case errors.Is(err, ErrInsufficientAllowance):
		return "Allowance is too low. Approve the staking contract for this amount first."
	case errors.As(err, &ve):
		return "Invalid request: " + ve.Err.Error() + "."
	case IsUserRejection(err):
		return "Transaction was rejected. Please try again."
	case errors.Is(err, ErrWithdrawalInFlight):
		return "Another withdrawal is already in progress."
	case errors.Is(err, ErrWriteInFlight):
		return "Another transaction is already in progress."
	case errors.Is(err, ErrConfirmationTimeout):
		return "Transaction was not confirmed in time. It may still be mined, check your stakes before retrying."
	case errors.Is(err, ErrTransactionReverted):
		return "Transaction reverted on-chain."
	case errors.Is(err, context.Canceled):
		return "Operation canceled."
	}

	switch op {
	case types.OpApprove:
		return "Approval failed. Please try again."
	case types.OpStake:
		return "Staking failed. Please make sure you have enough tokens and have approved the contract."
	case types.OpWithdraw:
		return "Withdrawal failed. Please try again."
	case types.OpEmergencyWithdraw:
		return "Emergency withdrawal failed. Please try again."
	default:
		return "Transaction failed. Please try again."
	}
}
