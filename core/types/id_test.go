package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	require.Equal(t, NewID(42), id)

	hex, err := ParseID("0x2a")
	require.NoError(t, err)
	require.Equal(t, id, hex)

	_, err = ParseID("340282366920938463463374607431768211456") // 2^128
	require.Error(t, err)

	max, err := ParseID("340282366920938463463374607431768211455")
	require.NoError(t, err)
	require.Len(t, max.Bytes(), 16)

	_, err = ParseID("")
	require.Error(t, err)
}

func TestIDJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID   ID            `json:"id"`
		Refs map[ID]string `json:"refs"`
	}
	in := wrapper{ID: NewID(7), Refs: map[ID]string{NewID(9): "nine"}}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"7","refs":{"9":"nine"}}`, string(raw))

	var out wrapper
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)
}

func TestIDOrdering(t *testing.T) {
	require.Equal(t, -1, NewID(1).Cmp(NewID(2)))
	require.Equal(t, NewID(2), NewID(1).Next())
	require.True(t, ID{}.IsZero())
}
