package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	ledgererrors "synthledger/core/errors"
	"synthledger/core/types"
)

// CreateAccount registers a caller chosen account id owned by caller.
func (e *Engine) CreateAccount(ctx context.Context, caller common.Address, id types.ID) error {
	return e.execute(ctx, "CreateAccount", ModuleAccounts, func(tx *ledgerTx) error {
		if id.IsZero() {
			return ledgererrors.InvalidParameter("accountId", "Zero id")
		}
		if caller == (common.Address{}) {
			return ledgererrors.InvalidParameter("owner", "Zero address")
		}
		exists, err := tx.kv.Has(accountKey(id))
		if err != nil {
			return err
		}
		if exists {
			return ledgererrors.InvalidParameter("accountId", "Account already exists")
		}
		account := &Account{ID: id, Owner: caller, Permissions: map[common.Address][]Permission{}, CreatedAt: tx.now}
		if err := tx.saveAccount(account); err != nil {
			return err
		}
		tx.emit(attrs{}.id("accountId", id).addr("owner", caller).event(EventTypeAccountCreated))
		return nil
	})
}

// GrantPermission gives target the permission on the account. The caller must
// be the owner or hold ADMIN.
func (e *Engine) GrantPermission(ctx context.Context, caller common.Address, id types.ID, perm Permission, target common.Address) error {
	return e.execute(ctx, "GrantPermission", ModuleAccounts, func(tx *ledgerTx) error {
		if !perm.Valid() {
			return ledgererrors.InvalidParameter("permission", "Unknown permission")
		}
		account, err := tx.authorize(id, caller, PermissionAdmin)
		if err != nil {
			return err
		}
		if target == (common.Address{}) {
			return ledgererrors.InvalidParameter("target", "Zero address")
		}
		for _, granted := range account.Permissions[target] {
			if granted == perm {
				return nil
			}
		}
		account.Permissions[target] = append(account.Permissions[target], perm)
		if err := tx.saveAccount(account); err != nil {
			return err
		}
		tx.emit(attrs{}.id("accountId", id).addr("target", target).str("permission", string(perm)).
			addr("sender", caller).event(EventTypePermissionGranted))
		return nil
	})
}

// RevokePermission removes a permission previously granted to target.
func (e *Engine) RevokePermission(ctx context.Context, caller common.Address, id types.ID, perm Permission, target common.Address) error {
	return e.execute(ctx, "RevokePermission", ModuleAccounts, func(tx *ledgerTx) error {
		account, err := tx.authorize(id, caller, PermissionAdmin)
		if err != nil {
			return err
		}
		return revoke(tx, account, perm, target, caller)
	})
}

// RenouncePermission lets the caller drop a permission it holds.
func (e *Engine) RenouncePermission(ctx context.Context, caller common.Address, id types.ID, perm Permission) error {
	return e.execute(ctx, "RenouncePermission", ModuleAccounts, func(tx *ledgerTx) error {
		account, err := tx.loadAccount(id)
		if err != nil {
			return err
		}
		held := false
		for _, granted := range account.Permissions[caller] {
			if granted == perm {
				held = true
			}
		}
		if !held {
			return &ledgererrors.PermissionDeniedError{AccountID: id, Permission: string(perm), Target: caller}
		}
		return revoke(tx, account, perm, caller, caller)
	})
}

func revoke(tx *ledgerTx, account *Account, perm Permission, target, sender common.Address) error {
	granted := account.Permissions[target]
	kept := granted[:0]
	for _, p := range granted {
		if p != perm {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		delete(account.Permissions, target)
	} else {
		account.Permissions[target] = kept
	}
	if err := tx.saveAccount(account); err != nil {
		return err
	}
	tx.emit(attrs{}.id("accountId", account.ID).addr("target", target).str("permission", string(perm)).
		addr("sender", sender).event(EventTypePermissionRevoked))
	return nil
}

// TransferAccountOwnership moves the account to newOwner. Granted permissions
// are cleared.
func (e *Engine) TransferAccountOwnership(ctx context.Context, caller common.Address, id types.ID, newOwner common.Address) error {
	return e.execute(ctx, "TransferAccountOwnership", ModuleAccounts, func(tx *ledgerTx) error {
		account, err := tx.loadAccount(id)
		if err != nil {
			return err
		}
		if caller != account.Owner {
			return &ledgererrors.UnauthorizedError{Address: caller}
		}
		if newOwner == (common.Address{}) {
			return ledgererrors.InvalidParameter("owner", "Zero address")
		}
		account.Owner = newOwner
		account.Permissions = map[common.Address][]Permission{}
		if err := tx.saveAccount(account); err != nil {
			return err
		}
		tx.emit(attrs{}.id("accountId", id).addr("from", caller).addr("to", newOwner).event(EventTypeAccountOwnershipMoved))
		return nil
	})
}

// HasPermission reports whether target holds perm on the account.
func (e *Engine) HasPermission(ctx context.Context, id types.ID, perm Permission, target common.Address) (bool, error) {
	var ok bool
	err := e.view(ctx, "HasPermission", func(tx *ledgerTx) error {
		account, err := tx.loadAccount(id)
		if err != nil {
			return err
		}
		ok = account.HasPermission(target, perm)
		return nil
	})
	return ok, err
}

// GetAccount returns the stored account.
func (e *Engine) GetAccount(ctx context.Context, id types.ID) (*Account, error) {
	var out *Account
	err := e.view(ctx, "GetAccount", func(tx *ledgerTx) error {
		account, err := tx.loadAccount(id)
		out = account
		return err
	})
	return out, err
}
