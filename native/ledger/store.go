package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthledger/core/decimalmath"
	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
	"synthledger/native/distribution"
	"synthledger/native/rewards"
	"synthledger/storage"
)

// ledgerTx is the unit of work behind every public operation. All reads and
// writes go through the overlay; nothing reaches the database until commit.
type ledgerTx struct {
	ctx    context.Context
	engine *Engine
	kv     *storage.Overlay
	now    uint64
	params *SystemParams
	events []*types.Event
}

func getRecord[T any](tx *ledgerTx, key []byte) (*T, bool, error) {
	raw, err := tx.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ledger: read %x: %w", key, err)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, false, fmt.Errorf("ledger: decode %x: %w", key, err)
	}
	return out, true, nil
}

func (tx *ledgerTx) put(key []byte, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ledger: encode %x: %w", key, err)
	}
	tx.kv.Put(key, encoded)
	return nil
}

func (tx *ledgerTx) emit(evt *types.Event) {
	if evt == nil {
		return
	}
	evt.Timestamp = int64(tx.now)
	tx.events = append(tx.events, evt)
}

// --- system params ---

func (tx *ledgerTx) loadParams() (*SystemParams, error) {
	if tx.params != nil {
		return tx.params, nil
	}
	params, ok, err := getRecord[SystemParams](tx, paramsKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		params = &SystemParams{NextMarketID: types.NewID(1), NextIntentID: 1}
	}
	if params.MinLiquidityRatio == nil {
		params.MinLiquidityRatio = big.NewInt(0)
	}
	if params.MintFeeRatio == nil {
		params.MintFeeRatio = big.NewInt(0)
	}
	if params.BurnFeeRatio == nil {
		params.BurnFeeRatio = big.NewInt(0)
	}
	tx.params = params
	return params, nil
}

func (tx *ledgerTx) saveParams() error {
	if tx.params == nil {
		return nil
	}
	return tx.put(paramsKey, tx.params)
}

func (tx *ledgerTx) requireOwner(caller common.Address) error {
	params, err := tx.loadParams()
	if err != nil {
		return err
	}
	if caller != params.Owner {
		return &ledgererrors.UnauthorizedError{Address: caller}
	}
	return nil
}

// --- accounts ---

func (tx *ledgerTx) loadAccount(id types.ID) (*Account, error) {
	account, ok, err := getRecord[Account](tx, accountKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ledgererrors.AccountNotFoundError{AccountID: id}
	}
	if account.Permissions == nil {
		account.Permissions = make(map[common.Address][]Permission)
	}
	return account, nil
}

func (tx *ledgerTx) saveAccount(account *Account) error {
	return tx.put(accountKey(account.ID), account)
}

// authorize loads the account and checks that caller holds perm on it.
func (tx *ledgerTx) authorize(id types.ID, caller common.Address, perm Permission) (*Account, error) {
	account, err := tx.loadAccount(id)
	if err != nil {
		return nil, err
	}
	if !account.HasPermission(caller, perm) {
		return nil, &ledgererrors.PermissionDeniedError{AccountID: id, Permission: string(perm), Target: caller}
	}
	return account, nil
}

// --- collateral ---

func (tx *ledgerTx) loadCollateralType(ct common.Address) (*CollateralType, error) {
	collateral, ok, err := getRecord[CollateralType](tx, collateralTypeKey(ct))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ledgererrors.CollateralNotFoundError{CollateralType: ct}
	}
	return collateral, nil
}

func (tx *ledgerTx) saveCollateralType(c *CollateralType) error {
	return tx.put(collateralTypeKey(c.Address), c)
}

func (tx *ledgerTx) loadAccountCollateral(account types.ID, ct common.Address) (*AccountCollateral, error) {
	entry, ok, err := getRecord[AccountCollateral](tx, accountCollateralKey(account, ct))
	if err != nil {
		return nil, err
	}
	if !ok {
		entry = &AccountCollateral{AccountID: account, CollateralType: ct}
	}
	if entry.Available == nil {
		entry.Available = big.NewInt(0)
	}
	return entry, nil
}

func (tx *ledgerTx) saveAccountCollateral(entry *AccountCollateral) error {
	return tx.put(accountCollateralKey(entry.AccountID, entry.CollateralType), entry)
}

// --- pools ---

func (tx *ledgerTx) loadPool(id types.ID) (*Pool, error) {
	pool, ok, err := getRecord[Pool](tx, poolKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ledgererrors.PoolNotFoundError{PoolID: id}
	}
	if pool.VaultsDebt == nil {
		pool.VaultsDebt = distribution.New()
	}
	if pool.PendingDebt == nil {
		pool.PendingDebt = big.NewInt(0)
	}
	return pool, nil
}

func (tx *ledgerTx) poolExists(id types.ID) (bool, error) {
	return tx.kv.Has(poolKey(id))
}

func (tx *ledgerTx) savePool(pool *Pool) error {
	return tx.put(poolKey(pool.ID), pool)
}

func (tx *ledgerTx) loadPoolCollateral(pool types.ID, ct common.Address) (*PoolCollateralConfiguration, error) {
	cfg, ok, err := getRecord[PoolCollateralConfiguration](tx, poolCollateralKey(pool, ct))
	if err != nil {
		return nil, err
	}
	if !ok {
		cfg = &PoolCollateralConfiguration{}
	}
	if cfg.CollateralLimit == nil {
		cfg.CollateralLimit = big.NewInt(0)
	}
	if cfg.IssuanceRatio == nil {
		cfg.IssuanceRatio = big.NewInt(0)
	}
	return cfg, nil
}

func (tx *ledgerTx) savePoolCollateral(pool types.ID, ct common.Address, cfg *PoolCollateralConfiguration) error {
	return tx.put(poolCollateralKey(pool, ct), cfg)
}

// --- markets ---

func (tx *ledgerTx) loadMarket(id types.ID) (*Market, error) {
	market, ok, err := getRecord[Market](tx, marketKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ledgererrors.MarketNotFoundError{MarketID: id}
	}
	for _, field := range []**big.Int{
		&market.ReportedDebt, &market.UsdDeposited, &market.UsdWithdrawn,
		&market.LastDistributedDebt, &market.LockedCapacity,
	} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	if market.PoolsDebt == nil {
		market.PoolsDebt = distribution.New()
	}
	for i := range market.Pools {
		entry := &market.Pools[i]
		if entry.Capacity == nil {
			entry.Capacity = big.NewInt(0)
		}
		if entry.MaxDebtShareValue == nil {
			entry.MaxDebtShareValue = big.NewInt(0)
		}
		if entry.Pending == nil {
			entry.Pending = big.NewInt(0)
		}
	}
	return market, nil
}

func (tx *ledgerTx) saveMarket(market *Market) error {
	return tx.put(marketKey(market.ID), market)
}

// --- vaults ---

func (tx *ledgerTx) loadVault(pool types.ID, ct common.Address) (*Vault, error) {
	vault, ok, err := getRecord[Vault](tx, vaultKey(pool, ct))
	if err != nil {
		return nil, err
	}
	if !ok {
		vault = &Vault{PoolID: pool, CollateralType: ct, Epoch: 1}
	}
	if vault.Collateral == nil {
		vault.Collateral = distribution.NewScalable()
	}
	if vault.AccountsDebt == nil {
		vault.AccountsDebt = distribution.New()
	}
	if vault.UnconsolidatedDebt == nil {
		vault.UnconsolidatedDebt = big.NewInt(0)
	}
	if vault.TotalConsolidatedDebt == nil {
		vault.TotalConsolidatedDebt = big.NewInt(0)
	}
	return vault, nil
}

func (tx *ledgerTx) saveVault(vault *Vault) error {
	return tx.put(vaultKey(vault.PoolID, vault.CollateralType), vault)
}

// loadPosition returns the account's position in the vault's current epoch.
// Records left over from an earlier epoch are returned as they are stored so
// that reward checkpoints can still be settled against them.
func (tx *ledgerTx) loadPosition(vault *Vault, account types.ID) (*VaultPosition, error) {
	pos, ok, err := getRecord[VaultPosition](tx, positionKey(vault.PoolID, vault.CollateralType, account))
	if err != nil {
		return nil, err
	}
	if !ok {
		pos = &VaultPosition{
			AccountID:      account,
			PoolID:         vault.PoolID,
			CollateralType: vault.CollateralType,
			Epoch:          vault.Epoch,
		}
	}
	if pos.CollateralShares == nil {
		pos.CollateralShares = big.NewInt(0)
	}
	if pos.ConsolidatedDebt == nil {
		pos.ConsolidatedDebt = big.NewInt(0)
	}
	return pos, nil
}

func (tx *ledgerTx) savePosition(pos *VaultPosition) error {
	return tx.put(positionKey(pos.PoolID, pos.CollateralType, pos.AccountID), pos)
}

func (tx *ledgerTx) forEachPosition(prefix []byte, fn func(*VaultPosition) error) error {
	var decodeErr error
	err := tx.kv.Iterate(prefix, func(_, value []byte) bool {
		pos := new(VaultPosition)
		if err := json.Unmarshal(value, pos); err != nil {
			decodeErr = fmt.Errorf("ledger: decode position: %w", err)
			return false
		}
		if pos.CollateralShares == nil {
			pos.CollateralShares = big.NewInt(0)
		}
		if pos.ConsolidatedDebt == nil {
			pos.ConsolidatedDebt = big.NewInt(0)
		}
		if err := fn(pos); err != nil {
			decodeErr = err
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return decodeErr
}

func (tx *ledgerTx) forEachVault(fn func(*Vault) error) error {
	var vaults []*Vault
	var decodeErr error
	err := tx.kv.Iterate(vaultPrefix, func(_, value []byte) bool {
		vault := new(Vault)
		if err := json.Unmarshal(value, vault); err != nil {
			decodeErr = fmt.Errorf("ledger: decode vault: %w", err)
			return false
		}
		vaults = append(vaults, vault)
		return true
	})
	if err != nil {
		return err
	}
	if decodeErr != nil {
		return decodeErr
	}
	for _, vault := range vaults {
		if err := fn(vault); err != nil {
			return err
		}
	}
	return nil
}

// --- intents ---

func (tx *ledgerTx) loadIntent(id uint64) (*DelegationIntent, error) {
	intent, ok, err := getRecord[DelegationIntent](tx, intentKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ledgererrors.IntentNotFoundError{IntentID: id}
	}
	return intent, nil
}

func (tx *ledgerTx) saveIntent(intent *DelegationIntent) error {
	if err := tx.put(intentKey(intent.ID), intent); err != nil {
		return err
	}
	tx.kv.Put(accountIntentKey(intent.AccountID, intent.ID), uint64Bytes(intent.ID))
	return nil
}

func (tx *ledgerTx) deleteIntent(intent *DelegationIntent) {
	tx.kv.Delete(intentKey(intent.ID))
	tx.kv.Delete(accountIntentKey(intent.AccountID, intent.ID))
}

func (tx *ledgerTx) accountIntentIDs(account types.ID) ([]uint64, error) {
	var ids []uint64
	err := tx.kv.Iterate(accountIntentsPrefix(account), func(key, _ []byte) bool {
		if len(key) < 8 {
			return true
		}
		ids = append(ids, new(big.Int).SetBytes(key[len(key)-8:]).Uint64())
		return true
	})
	return ids, err
}

// --- rewards ---

func (tx *ledgerTx) loadDistributor(pool types.ID, ct, distributor common.Address) (*RewardDistributor, bool, error) {
	rec, ok, err := getRecord[RewardDistributor](tx, distributorKey(pool, ct, distributor))
	if err != nil || !ok {
		return nil, ok, err
	}
	if rec.Stream == nil {
		rec.Stream = rewards.NewStream()
	}
	if rec.Stream.RewardPerShare == nil {
		rec.Stream.RewardPerShare = big.NewInt(0)
	}
	if rec.ClosedEpochs == nil {
		rec.ClosedEpochs = make(map[uint64]*big.Int)
	}
	return rec, true, nil
}

func (tx *ledgerTx) saveDistributor(rec *RewardDistributor) error {
	return tx.put(distributorKey(rec.PoolID, rec.CollateralType, rec.Distributor), rec)
}

func (tx *ledgerTx) loadClaim(pool types.ID, ct, distributor common.Address, account types.ID) (*rewards.Claim, error) {
	claim, ok, err := getRecord[rewards.Claim](tx, rewardClaimKey(pool, ct, distributor, account))
	if err != nil {
		return nil, err
	}
	if !ok {
		claim = &rewards.Claim{}
	}
	if claim.Pending == nil {
		claim.Pending = big.NewInt(0)
	}
	if claim.LastRewardPerShare == nil {
		claim.LastRewardPerShare = big.NewInt(0)
	}
	return claim, nil
}

func (tx *ledgerTx) saveClaim(pool types.ID, ct, distributor common.Address, account types.ID, claim *rewards.Claim) error {
	return tx.put(rewardClaimKey(pool, ct, distributor, account), claim)
}

// --- USD balances ---

func (tx *ledgerTx) usdBalance(addr common.Address) (*big.Int, error) {
	raw, err := tx.kv.Get(usdBalanceKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: read usd balance: %w", err)
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("ledger: corrupt usd balance for %s", addr.Hex())
	}
	return balance, nil
}

func (tx *ledgerTx) setUsdBalance(addr common.Address, balance *big.Int) {
	if balance.Sign() == 0 {
		tx.kv.Delete(usdBalanceKey(addr))
		return
	}
	tx.kv.Put(usdBalanceKey(addr), []byte(balance.String()))
}

func (tx *ledgerTx) creditUsd(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	balance, err := tx.usdBalance(addr)
	if err != nil {
		return err
	}
	tx.setUsdBalance(addr, balance.Add(balance, amount))
	return nil
}

func (tx *ledgerTx) debitUsd(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	balance, err := tx.usdBalance(addr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return &ledgererrors.InsufficientBalanceError{Required: decimalmath.Clone(amount), Available: balance}
	}
	tx.setUsdBalance(addr, balance.Sub(balance, amount))
	return nil
}

// --- collaborators ---

func (tx *ledgerTx) price(ct common.Address) (*big.Int, error) {
	oracle := tx.engine.oracle
	if oracle == nil {
		return nil, errNilOracle
	}
	price, err := oracle.Price(tx.ctx, ct)
	if err != nil {
		return nil, fmt.Errorf("ledger: price %s: %w", ct.Hex(), err)
	}
	if price == nil || price.Sign() < 0 {
		return nil, fmt.Errorf("ledger: invalid price for %s", ct.Hex())
	}
	return price, nil
}
