package ledger

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"lukechampine.com/blake3"

	"synthledger/core/types"
)

var (
	paramsKey               = []byte("ledger/params")
	accountPrefix           = []byte("ledger/account/")
	collateralTypePrefix    = []byte("ledger/collateral-type/")
	accountCollateralPrefix = []byte("ledger/account-collateral/")
	poolPrefix              = []byte("ledger/pool/")
	poolCollateralPrefix    = []byte("ledger/pool-collateral/")
	marketPrefix            = []byte("ledger/market/")
	vaultPrefix             = []byte("ledger/vault/")
	positionPrefix          = []byte("ledger/position/")
	intentPrefix            = []byte("ledger/intent/")
	accountIntentPrefix     = []byte("ledger/account-intent/")
	distributorPrefix       = []byte("ledger/distributor/")
	rewardClaimPrefix       = []byte("ledger/reward-claim/")
	usdBalancePrefix        = []byte("ledger/usd/")
)

// digestSize keeps composite keys short while leaving collisions impractical.
const digestSize = 16

func withPrefix(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

// digest hashes length-prefixed components so distinct tuples never share
// an encoding.
func digest(parts ...[]byte) []byte {
	hasher := blake3.New(digestSize, nil)
	var lenBuf [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		hasher.Write(lenBuf[:])
		hasher.Write(p)
	}
	return hasher.Sum(nil)
}

func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func accountKey(id types.ID) []byte { return withPrefix(accountPrefix, id.Bytes()) }

func collateralTypeKey(ct common.Address) []byte {
	return withPrefix(collateralTypePrefix, ct.Bytes())
}

func accountCollateralKey(account types.ID, ct common.Address) []byte {
	return withPrefix(accountCollateralPrefix, account.Bytes(), ct.Bytes())
}

func poolKey(id types.ID) []byte { return withPrefix(poolPrefix, id.Bytes()) }

func poolCollateralKey(pool types.ID, ct common.Address) []byte {
	return withPrefix(poolCollateralPrefix, digest(pool.Bytes(), ct.Bytes()))
}

func marketKey(id types.ID) []byte { return withPrefix(marketPrefix, id.Bytes()) }

func vaultDigest(pool types.ID, ct common.Address) []byte {
	return digest([]byte("vault"), pool.Bytes(), ct.Bytes())
}

func vaultKey(pool types.ID, ct common.Address) []byte {
	return withPrefix(vaultPrefix, vaultDigest(pool, ct))
}

func positionVaultPrefix(pool types.ID, ct common.Address) []byte {
	return withPrefix(positionPrefix, vaultDigest(pool, ct))
}

func positionKey(pool types.ID, ct common.Address, account types.ID) []byte {
	return withPrefix(positionPrefix, vaultDigest(pool, ct), account.Bytes())
}

func intentKey(id uint64) []byte { return withPrefix(intentPrefix, uint64Bytes(id)) }

func accountIntentsPrefix(account types.ID) []byte {
	return withPrefix(accountIntentPrefix, account.Bytes())
}

func accountIntentKey(account types.ID, id uint64) []byte {
	return withPrefix(accountIntentPrefix, account.Bytes(), uint64Bytes(id))
}

func distributorKey(pool types.ID, ct, distributor common.Address) []byte {
	return withPrefix(distributorPrefix, digest(pool.Bytes(), ct.Bytes(), distributor.Bytes()))
}

func rewardClaimKey(pool types.ID, ct, distributor common.Address, account types.ID) []byte {
	return withPrefix(rewardClaimPrefix, digest(pool.Bytes(), ct.Bytes(), distributor.Bytes()), account.Bytes())
}

func usdBalanceKey(addr common.Address) []byte { return withPrefix(usdBalancePrefix, addr.Bytes()) }
