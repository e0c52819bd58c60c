package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEventManager() (*Manager, *Bus) {
	log := zerolog.Nop()
	bus := NewBus(log)
	return NewManager(bus, log), bus
}

func receive(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("expected event not received")
		return nil
	}
}

func TestManager_EmitTyped(t *testing.T) {
	manager, bus := setupEventManager()
	ch := make(chan *Event, 1)
	bus.Subscribe(SuggestionsGenerated, func(e *Event) { ch <- e })

	manager.Emit("suggestions", &SuggestionsGeneratedData{PortfolioID: "p1", Created: 3, Pending: 3})

	event := receive(t, ch)
	assert.Equal(t, SuggestionsGenerated, event.Type)
	assert.Equal(t, "suggestions", event.Module)

	data, ok := event.Data.(*SuggestionsGeneratedData)
	require.True(t, ok)
	assert.Equal(t, 3, data.Created)
}

func TestManager_TransactionEventsUseDeclaredType(t *testing.T) {
	manager, bus := setupEventManager()
	ch := make(chan *Event, 1)
	bus.Subscribe(TransactionConfirmed, func(e *Event) { ch <- e })

	manager.Emit("ledger", &TransactionEventData{Type: TransactionConfirmed, TransactionID: "tx1", Status: "CONFIRMED"})

	event := receive(t, ch)
	assert.Equal(t, TransactionConfirmed, event.Type)
}

func TestBus_Unsubscribe(t *testing.T) {
	manager, bus := setupEventManager()
	ch := make(chan *Event, 2)
	id := bus.Subscribe(ErrorOccurred, func(e *Event) { ch <- e })
	assert.Equal(t, 1, bus.SubscriberCount(ErrorOccurred))

	bus.Unsubscribe(id)
	assert.Equal(t, 0, bus.SubscriberCount(ErrorOccurred))

	manager.EmitError("test", errors.New("boom"), nil)
	select {
	case <-ch:
		t.Fatal("unsubscribed handler was called")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_HandlerPanicIsContained(t *testing.T) {
	manager, bus := setupEventManager()
	ch := make(chan *Event, 1)
	bus.Subscribe(MetricsRefreshed, func(e *Event) { panic("bad handler") })
	bus.Subscribe(MetricsRefreshed, func(e *Event) { ch <- e })

	manager.Emit("metrics", &MetricsRefreshedData{PortfolioID: "p1"})
	receive(t, ch)
}

func TestEvent_MarshalJSON(t *testing.T) {
	event := &Event{
		Type:      RebalanceDecided,
		Module:    "suggestions",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Data:      &RebalanceDecidedData{Ticker: "AAA", Action: "SELL", Quantity: 3},
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "REBALANCE_DECIDED", decoded["type"])
	assert.Equal(t, "2024-05-01T12:00:00Z", decoded["timestamp"])
	data := decoded["data"].(map[string]interface{})
	assert.Equal(t, "AAA", data["ticker"])
	assert.Equal(t, "SELL", data["action"])
}
