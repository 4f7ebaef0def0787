// Package errors defines the ledger's typed failure signals. Every failure is a
// struct carrying the values that drove the decision and matches, through
// errors.Is, both its own sentinel and the sentinel of its category.
package errors

import (
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/types"
)

// Categories.
var (
	ErrValidation    = stderrors.New("validation")
	ErrAuthorization = stderrors.New("authorization")
	ErrNotFound      = stderrors.New("not found")
	ErrSolvency      = stderrors.New("solvency")
	ErrCapacity      = stderrors.New("capacity")
)

// Kinds.
var (
	ErrInvalidParameter            = stderrors.New("InvalidParameter")
	ErrInvalidLeverage             = stderrors.New("InvalidLeverage")
	ErrInvalidCollateralAmount     = stderrors.New("InvalidCollateralAmount")
	ErrCollateralDepositDisabled   = stderrors.New("CollateralDepositDisabled")
	ErrUnauthorized                = stderrors.New("Unauthorized")
	ErrPermissionDenied            = stderrors.New("PermissionDenied")
	ErrPoolNotFound                = stderrors.New("PoolNotFound")
	ErrMarketNotFound              = stderrors.New("MarketNotFound")
	ErrAccountNotFound             = stderrors.New("AccountNotFound")
	ErrCollateralNotFound          = stderrors.New("CollateralNotFound")
	ErrIntentNotFound              = stderrors.New("DelegationIntentNotFound")
	ErrDistributorNotFound         = stderrors.New("RewardDistributorNotFound")
	ErrNotFundedByPool             = stderrors.New("NotFundedByPool")
	ErrInsufficientCollateralRatio = stderrors.New("InsufficientCollateralRatio")
	ErrInsufficientDelegation      = stderrors.New("InsufficientDelegation")
	ErrInsufficientAccountCollat   = stderrors.New("InsufficientAccountCollateral")
	ErrIneligibleForLiquidation    = stderrors.New("IneligibleForLiquidation")
	ErrMustBeVaultLiquidated       = stderrors.New("MustBeVaultLiquidated")
	ErrInsufficientBalance         = stderrors.New("InsufficientBalance")
	ErrCapacityLocked              = stderrors.New("CapacityLocked")
	ErrMinDelegationTimeoutPending = stderrors.New("MinDelegationTimeoutPending")
	ErrDelegationIntentNotReady    = stderrors.New("DelegationIntentNotReady")
	ErrDelegationIntentExpired     = stderrors.New("DelegationIntentExpired")
	ErrPoolExitTemporaryLock       = stderrors.New("PoolExitTemporaryLock")
	ErrPoolCollateralLimitExceeded = stderrors.New("PoolCollateralLimitExceeded")
	ErrNotEnoughLiquidity          = stderrors.New("NotEnoughLiquidity")
)

// Field is a single named value attached to a ledger error.
type Field struct {
	Name  string
	Value string
}

// LedgerError is implemented by every typed failure in this package.
type LedgerError interface {
	error
	Kind() string
	Category() error
	Fields() []Field
}

// As returns the LedgerError wrapped in err, if any.
func As(err error) (LedgerError, bool) {
	var le LedgerError
	if stderrors.As(err, &le) {
		return le, true
	}
	return nil, false
}

func render(kind string, fields []Field) string {
	if len(fields) == 0 {
		return kind
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Name+"="+f.Value)
	}
	return kind + "(" + strings.Join(parts, ", ") + ")"
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func uintString(v uint64) string { return fmt.Sprintf("%d", v) }

// --- validation ---

type InvalidParameterError struct {
	Parameter string
	Reason    string
}

func InvalidParameter(parameter, reason string) *InvalidParameterError {
	return &InvalidParameterError{Parameter: parameter, Reason: reason}
}

func (e *InvalidParameterError) Kind() string    { return ErrInvalidParameter.Error() }
func (e *InvalidParameterError) Category() error { return ErrValidation }
func (e *InvalidParameterError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *InvalidParameterError) Is(t error) bool { return t == ErrInvalidParameter || t == ErrValidation }
func (e *InvalidParameterError) Fields() []Field {
	return []Field{{"parameter", e.Parameter}, {"reason", e.Reason}}
}

type InvalidLeverageError struct {
	Leverage *big.Int
}

func (e *InvalidLeverageError) Kind() string    { return ErrInvalidLeverage.Error() }
func (e *InvalidLeverageError) Category() error { return ErrValidation }
func (e *InvalidLeverageError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *InvalidLeverageError) Is(t error) bool { return t == ErrInvalidLeverage || t == ErrValidation }
func (e *InvalidLeverageError) Fields() []Field { return []Field{{"leverage", bigString(e.Leverage)}} }

type InvalidCollateralAmountError struct{}

func (e *InvalidCollateralAmountError) Kind() string    { return ErrInvalidCollateralAmount.Error() }
func (e *InvalidCollateralAmountError) Category() error { return ErrValidation }
func (e *InvalidCollateralAmountError) Error() string   { return render(e.Kind(), nil) }
func (e *InvalidCollateralAmountError) Is(t error) bool {
	return t == ErrInvalidCollateralAmount || t == ErrValidation
}
func (e *InvalidCollateralAmountError) Fields() []Field { return nil }

type CollateralDepositDisabledError struct {
	CollateralType common.Address
}

func (e *CollateralDepositDisabledError) Kind() string    { return ErrCollateralDepositDisabled.Error() }
func (e *CollateralDepositDisabledError) Category() error { return ErrValidation }
func (e *CollateralDepositDisabledError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *CollateralDepositDisabledError) Is(t error) bool {
	return t == ErrCollateralDepositDisabled || t == ErrValidation
}
func (e *CollateralDepositDisabledError) Fields() []Field {
	return []Field{{"collateralType", e.CollateralType.Hex()}}
}

// --- authorization ---

type UnauthorizedError struct {
	Address common.Address
}

func (e *UnauthorizedError) Kind() string    { return ErrUnauthorized.Error() }
func (e *UnauthorizedError) Category() error { return ErrAuthorization }
func (e *UnauthorizedError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *UnauthorizedError) Is(t error) bool { return t == ErrUnauthorized || t == ErrAuthorization }
func (e *UnauthorizedError) Fields() []Field { return []Field{{"address", e.Address.Hex()}} }

type PermissionDeniedError struct {
	AccountID  types.ID
	Permission string
	Target     common.Address
}

func (e *PermissionDeniedError) Kind() string    { return ErrPermissionDenied.Error() }
func (e *PermissionDeniedError) Category() error { return ErrAuthorization }
func (e *PermissionDeniedError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *PermissionDeniedError) Is(t error) bool {
	return t == ErrPermissionDenied || t == ErrAuthorization
}
func (e *PermissionDeniedError) Fields() []Field {
	return []Field{{"accountId", e.AccountID.String()}, {"permission", e.Permission}, {"target", e.Target.Hex()}}
}

// --- not found ---

type PoolNotFoundError struct{ PoolID types.ID }

func (e *PoolNotFoundError) Kind() string    { return ErrPoolNotFound.Error() }
func (e *PoolNotFoundError) Category() error { return ErrNotFound }
func (e *PoolNotFoundError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *PoolNotFoundError) Is(t error) bool { return t == ErrPoolNotFound || t == ErrNotFound }
func (e *PoolNotFoundError) Fields() []Field { return []Field{{"poolId", e.PoolID.String()}} }

type MarketNotFoundError struct{ MarketID types.ID }

func (e *MarketNotFoundError) Kind() string    { return ErrMarketNotFound.Error() }
func (e *MarketNotFoundError) Category() error { return ErrNotFound }
func (e *MarketNotFoundError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *MarketNotFoundError) Is(t error) bool { return t == ErrMarketNotFound || t == ErrNotFound }
func (e *MarketNotFoundError) Fields() []Field { return []Field{{"marketId", e.MarketID.String()}} }

type AccountNotFoundError struct{ AccountID types.ID }

func (e *AccountNotFoundError) Kind() string    { return ErrAccountNotFound.Error() }
func (e *AccountNotFoundError) Category() error { return ErrNotFound }
func (e *AccountNotFoundError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *AccountNotFoundError) Is(t error) bool { return t == ErrAccountNotFound || t == ErrNotFound }
func (e *AccountNotFoundError) Fields() []Field { return []Field{{"accountId", e.AccountID.String()}} }

type CollateralNotFoundError struct{ CollateralType common.Address }

func (e *CollateralNotFoundError) Kind() string    { return ErrCollateralNotFound.Error() }
func (e *CollateralNotFoundError) Category() error { return ErrNotFound }
func (e *CollateralNotFoundError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *CollateralNotFoundError) Is(t error) bool {
	return t == ErrCollateralNotFound || t == ErrNotFound
}
func (e *CollateralNotFoundError) Fields() []Field {
	return []Field{{"collateralType", e.CollateralType.Hex()}}
}

type IntentNotFoundError struct{ IntentID uint64 }

func (e *IntentNotFoundError) Kind() string    { return ErrIntentNotFound.Error() }
func (e *IntentNotFoundError) Category() error { return ErrNotFound }
func (e *IntentNotFoundError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *IntentNotFoundError) Is(t error) bool { return t == ErrIntentNotFound || t == ErrNotFound }
func (e *IntentNotFoundError) Fields() []Field { return []Field{{"intentId", uintString(e.IntentID)}} }

type DistributorNotFoundError struct {
	PoolID         types.ID
	CollateralType common.Address
	Distributor    common.Address
}

func (e *DistributorNotFoundError) Kind() string    { return ErrDistributorNotFound.Error() }
func (e *DistributorNotFoundError) Category() error { return ErrNotFound }
func (e *DistributorNotFoundError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *DistributorNotFoundError) Is(t error) bool {
	return t == ErrDistributorNotFound || t == ErrNotFound
}
func (e *DistributorNotFoundError) Fields() []Field {
	return []Field{
		{"poolId", e.PoolID.String()},
		{"collateralType", e.CollateralType.Hex()},
		{"distributor", e.Distributor.Hex()},
	}
}

type NotFundedByPoolError struct {
	MarketID types.ID
	PoolID   types.ID
}

func (e *NotFundedByPoolError) Kind() string    { return ErrNotFundedByPool.Error() }
func (e *NotFundedByPoolError) Category() error { return ErrNotFound }
func (e *NotFundedByPoolError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *NotFundedByPoolError) Is(t error) bool { return t == ErrNotFundedByPool || t == ErrNotFound }
func (e *NotFundedByPoolError) Fields() []Field {
	return []Field{{"marketId", e.MarketID.String()}, {"poolId", e.PoolID.String()}}
}

// --- solvency ---

type InsufficientCollateralRatioError struct {
	CollateralValue *big.Int
	Debt            *big.Int
	Ratio           *big.Int
	MinRatio        *big.Int
}

func (e *InsufficientCollateralRatioError) Kind() string    { return ErrInsufficientCollateralRatio.Error() }
func (e *InsufficientCollateralRatioError) Category() error { return ErrSolvency }
func (e *InsufficientCollateralRatioError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *InsufficientCollateralRatioError) Is(t error) bool {
	return t == ErrInsufficientCollateralRatio || t == ErrSolvency
}
func (e *InsufficientCollateralRatioError) Fields() []Field {
	return []Field{
		{"collateralValue", bigString(e.CollateralValue)},
		{"debt", bigString(e.Debt)},
		{"ratio", bigString(e.Ratio)},
		{"minRatio", bigString(e.MinRatio)},
	}
}

type InsufficientDelegationError struct{ MinDelegation *big.Int }

func (e *InsufficientDelegationError) Kind() string    { return ErrInsufficientDelegation.Error() }
func (e *InsufficientDelegationError) Category() error { return ErrSolvency }
func (e *InsufficientDelegationError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *InsufficientDelegationError) Is(t error) bool {
	return t == ErrInsufficientDelegation || t == ErrSolvency
}
func (e *InsufficientDelegationError) Fields() []Field {
	return []Field{{"minDelegation", bigString(e.MinDelegation)}}
}

type InsufficientAccountCollateralError struct{ Amount *big.Int }

func (e *InsufficientAccountCollateralError) Kind() string    { return ErrInsufficientAccountCollat.Error() }
func (e *InsufficientAccountCollateralError) Category() error { return ErrSolvency }
func (e *InsufficientAccountCollateralError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *InsufficientAccountCollateralError) Is(t error) bool {
	return t == ErrInsufficientAccountCollat || t == ErrSolvency
}
func (e *InsufficientAccountCollateralError) Fields() []Field {
	return []Field{{"amount", bigString(e.Amount)}}
}

type IneligibleForLiquidationError struct {
	CollateralValue *big.Int
	Debt            *big.Int
	CurrentCRatio   *big.Int
	RequiredCRatio  *big.Int
}

func (e *IneligibleForLiquidationError) Kind() string    { return ErrIneligibleForLiquidation.Error() }
func (e *IneligibleForLiquidationError) Category() error { return ErrSolvency }
func (e *IneligibleForLiquidationError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *IneligibleForLiquidationError) Is(t error) bool {
	return t == ErrIneligibleForLiquidation || t == ErrSolvency
}
func (e *IneligibleForLiquidationError) Fields() []Field {
	return []Field{
		{"collateralValue", bigString(e.CollateralValue)},
		{"debt", bigString(e.Debt)},
		{"currentCRatio", bigString(e.CurrentCRatio)},
		{"requiredCRatio", bigString(e.RequiredCRatio)},
	}
}

type MustBeVaultLiquidatedError struct{}

func (e *MustBeVaultLiquidatedError) Kind() string    { return ErrMustBeVaultLiquidated.Error() }
func (e *MustBeVaultLiquidatedError) Category() error { return ErrSolvency }
func (e *MustBeVaultLiquidatedError) Error() string   { return render(e.Kind(), nil) }
func (e *MustBeVaultLiquidatedError) Is(t error) bool {
	return t == ErrMustBeVaultLiquidated || t == ErrSolvency
}
func (e *MustBeVaultLiquidatedError) Fields() []Field { return nil }

type InsufficientBalanceError struct {
	Required  *big.Int
	Available *big.Int
}

func (e *InsufficientBalanceError) Kind() string    { return ErrInsufficientBalance.Error() }
func (e *InsufficientBalanceError) Category() error { return ErrSolvency }
func (e *InsufficientBalanceError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *InsufficientBalanceError) Is(t error) bool {
	return t == ErrInsufficientBalance || t == ErrSolvency
}
func (e *InsufficientBalanceError) Fields() []Field {
	return []Field{{"required", bigString(e.Required)}, {"available", bigString(e.Available)}}
}

// --- capacity / timing ---

type CapacityLockedError struct{ MarketID types.ID }

func (e *CapacityLockedError) Kind() string    { return ErrCapacityLocked.Error() }
func (e *CapacityLockedError) Category() error { return ErrCapacity }
func (e *CapacityLockedError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *CapacityLockedError) Is(t error) bool { return t == ErrCapacityLocked || t == ErrCapacity }
func (e *CapacityLockedError) Fields() []Field { return []Field{{"marketId", e.MarketID.String()}} }

type MinDelegationTimeoutPendingError struct {
	PoolID        types.ID
	TimeRemaining uint64
}

func (e *MinDelegationTimeoutPendingError) Kind() string    { return ErrMinDelegationTimeoutPending.Error() }
func (e *MinDelegationTimeoutPendingError) Category() error { return ErrCapacity }
func (e *MinDelegationTimeoutPendingError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *MinDelegationTimeoutPendingError) Is(t error) bool {
	return t == ErrMinDelegationTimeoutPending || t == ErrCapacity
}
func (e *MinDelegationTimeoutPendingError) Fields() []Field {
	return []Field{{"poolId", e.PoolID.String()}, {"timeRemaining", uintString(e.TimeRemaining)}}
}

type DelegationIntentNotReadyError struct {
	DeclarationTime     uint64
	ProcessingStartTime uint64
}

func (e *DelegationIntentNotReadyError) Kind() string    { return ErrDelegationIntentNotReady.Error() }
func (e *DelegationIntentNotReadyError) Category() error { return ErrCapacity }
func (e *DelegationIntentNotReadyError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *DelegationIntentNotReadyError) Is(t error) bool {
	return t == ErrDelegationIntentNotReady || t == ErrCapacity
}
func (e *DelegationIntentNotReadyError) Fields() []Field {
	return []Field{
		{"declarationTime", uintString(e.DeclarationTime)},
		{"processingStartTime", uintString(e.ProcessingStartTime)},
	}
}

type DelegationIntentExpiredError struct {
	DeclarationTime   uint64
	ProcessingEndTime uint64
}

func (e *DelegationIntentExpiredError) Kind() string    { return ErrDelegationIntentExpired.Error() }
func (e *DelegationIntentExpiredError) Category() error { return ErrCapacity }
func (e *DelegationIntentExpiredError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *DelegationIntentExpiredError) Is(t error) bool {
	return t == ErrDelegationIntentExpired || t == ErrCapacity
}
func (e *DelegationIntentExpiredError) Fields() []Field {
	return []Field{
		{"declarationTime", uintString(e.DeclarationTime)},
		{"processingEndTime", uintString(e.ProcessingEndTime)},
	}
}

type PoolExitTemporaryLockError struct {
	PoolID types.ID
	Until  uint64
}

func (e *PoolExitTemporaryLockError) Kind() string    { return ErrPoolExitTemporaryLock.Error() }
func (e *PoolExitTemporaryLockError) Category() error { return ErrCapacity }
func (e *PoolExitTemporaryLockError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *PoolExitTemporaryLockError) Is(t error) bool {
	return t == ErrPoolExitTemporaryLock || t == ErrCapacity
}
func (e *PoolExitTemporaryLockError) Fields() []Field {
	return []Field{{"poolId", e.PoolID.String()}, {"until", uintString(e.Until)}}
}

type PoolCollateralLimitExceededError struct {
	PoolID         types.ID
	CollateralType common.Address
	Amount         *big.Int
	Limit          *big.Int
}

func (e *PoolCollateralLimitExceededError) Kind() string    { return ErrPoolCollateralLimitExceeded.Error() }
func (e *PoolCollateralLimitExceededError) Category() error { return ErrCapacity }
func (e *PoolCollateralLimitExceededError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *PoolCollateralLimitExceededError) Is(t error) bool {
	return t == ErrPoolCollateralLimitExceeded || t == ErrCapacity
}
func (e *PoolCollateralLimitExceededError) Fields() []Field {
	return []Field{
		{"poolId", e.PoolID.String()},
		{"collateralType", e.CollateralType.Hex()},
		{"amount", bigString(e.Amount)},
		{"limit", bigString(e.Limit)},
	}
}

type NotEnoughLiquidityError struct {
	MarketID types.ID
	Amount   *big.Int
}

func (e *NotEnoughLiquidityError) Kind() string    { return ErrNotEnoughLiquidity.Error() }
func (e *NotEnoughLiquidityError) Category() error { return ErrCapacity }
func (e *NotEnoughLiquidityError) Error() string   { return render(e.Kind(), e.Fields()) }
func (e *NotEnoughLiquidityError) Is(t error) bool {
	return t == ErrNotEnoughLiquidity || t == ErrCapacity
}
func (e *NotEnoughLiquidityError) Fields() []Field {
	return []Field{{"marketId", e.MarketID.String()}, {"amount", bigString(e.Amount)}}
}
