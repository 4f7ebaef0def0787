package eventlog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"synthledger/core/types"
	"synthledger/native/ledger"
	"synthledger/storage"
)

type payload struct{ evt *types.Event }

func (p payload) EventType() string   { return p.evt.Type }
func (p payload) Event() *types.Event { return p.evt }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(DriverSQLite, dsn)
	require.NoError(t, err)
	return db
}

func TestArchiveRecordsCommittedEvents(t *testing.T) {
	ctx := context.Background()
	archive, err := New(setupTestDB(t), nil)
	require.NoError(t, err)
	t.Cleanup(archive.Close)

	engine := ledger.NewEngine(storage.NewMemDB())
	engine.SetEmitter(archive)
	engine.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })
	owner := common.HexToAddress("0x0a")
	require.NoError(t, engine.Initialize(ctx, owner))
	require.NoError(t, engine.CreatePool(ctx, owner, types.NewID(7), owner))
	require.NoError(t, engine.CreateAccount(ctx, owner, types.NewID(3)))

	all, err := archive.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, ledger.EventTypeSystemConfigured, all[0].Type)
	require.Equal(t, ledger.EventTypePoolCreated, all[1].Type)
	require.Equal(t, ledger.EventTypeAccountCreated, all[2].Type)
	require.Equal(t, []uint64{1, 2, 3}, []uint64{all[0].Height, all[1].Height, all[2].Height})
	require.Equal(t, int64(1_700_000_000), all[1].Timestamp)

	pools, err := archive.List(ctx, Query{PoolID: "7"})
	require.NoError(t, err)
	require.Len(t, pools, 1)
	require.Equal(t, owner.Hex(), pools[0].Attributes["owner"])

	later, err := archive.List(ctx, Query{AfterSequence: 2})
	require.NoError(t, err)
	require.Len(t, later, 1)
	require.Equal(t, "3", later[0].Attributes["accountId"])

	first, err := archive.List(ctx, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, first, 1)
}

func TestArchiveResumesOrdinal(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	archive, err := New(db, nil)
	require.NoError(t, err)
	t.Cleanup(archive.Close)
	require.NoError(t, archive.Store(ctx, &types.Event{Type: "a", Height: 1, Attributes: map[string]string{}}))

	reopened, err := New(db, nil)
	require.NoError(t, err)
	t.Cleanup(reopened.Close)
	require.NoError(t, reopened.Store(ctx, &types.Event{Type: "b", Height: 2, Attributes: map[string]string{}}))

	all, err := reopened.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].Type)
	require.Equal(t, "b", all[1].Type)
}

func TestArchiveCloseDrainsQueuedEvents(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	archive, err := New(db, nil)
	require.NoError(t, err)

	for i := uint64(1); i <= 20; i++ {
		archive.Emit(payload{&types.Event{Type: "usd.minted", Height: i, Attributes: map[string]string{}}})
	}
	archive.Close()
	archive.Emit(payload{&types.Event{Type: "usd.burned", Height: 21, Attributes: map[string]string{}}})
	require.NoError(t, archive.Flush(ctx))

	reopened, err := New(db, nil)
	require.NoError(t, err)
	t.Cleanup(reopened.Close)
	all, err := reopened.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 20)
	require.Equal(t, uint64(20), all[19].Height)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.ErrorContains(t, err, "unsupported driver")
}
