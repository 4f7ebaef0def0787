package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"synthledger/core/types"
)

type testEvent struct{ evt *types.Event }

func (t testEvent) EventType() string   { return t.evt.Type }
func (t testEvent) Event() *types.Event { return t.evt }

type countingEmitter struct{ n int }

func (c *countingEmitter) Emit(Event) { c.n++ }

func TestBrokerFanOut(t *testing.T) {
	broker := NewBroker(1)
	first, cancelFirst := broker.Subscribe()
	second, cancelSecond := broker.Subscribe()
	require.Equal(t, 2, broker.Subscribers())

	evt := &types.Event{Type: "pool.created", Attributes: map[string]string{"poolId": "1"}}
	broker.Emit(testEvent{evt: evt})
	// The buffer is full for both subscribers; this one is dropped.
	broker.Emit(testEvent{evt: evt})

	got := <-first
	require.Equal(t, "pool.created", got.Type)
	got.Attributes["poolId"] = "mutated"
	require.Equal(t, "1", (<-second).Attributes["poolId"])

	cancelFirst()
	cancelFirst()
	_, open := <-first
	require.False(t, open)
	require.Equal(t, 1, broker.Subscribers())
	cancelSecond()
}

func TestMultiEmitter(t *testing.T) {
	a, b := &countingEmitter{}, &countingEmitter{}
	MultiEmitter{a, nil, b, NoopEmitter{}}.Emit(testEvent{evt: &types.Event{Type: "x"}})
	require.Equal(t, 1, a.n)
	require.Equal(t, 1, b.n)
}
