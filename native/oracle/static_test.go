package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestStaticPrice(t *testing.T) {
	o := NewStatic(0)
	snx := common.HexToAddress("0x01")

	_, err := o.Price(context.Background(), snx)
	require.True(t, errors.Is(err, ErrUnknownCollateral))

	require.NoError(t, o.Set(snx, big.NewInt(42)))
	price, err := o.Price(context.Background(), snx)
	require.NoError(t, err)
	require.Equal(t, int64(42), price.Int64())

	price.SetInt64(7)
	again, err := o.Price(context.Background(), snx)
	require.NoError(t, err)
	require.Equal(t, int64(42), again.Int64(), "returned prices must be copies")

	require.Error(t, o.Set(snx, big.NewInt(-1)))
}

func TestStaticStaleness(t *testing.T) {
	now := time.Unix(1_000, 0)
	o := NewStatic(time.Minute)
	o.SetNowFunc(func() time.Time { return now })
	eth := common.HexToAddress("0x02")
	require.NoError(t, o.Set(eth, big.NewInt(1)))

	now = now.Add(30 * time.Second)
	_, err := o.Price(context.Background(), eth)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = o.Price(context.Background(), eth)
	require.True(t, errors.Is(err, ErrStalePrice))
	require.Len(t, o.Snapshot(), 1)
}
