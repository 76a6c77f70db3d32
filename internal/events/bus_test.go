package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBus_FanOut(t *testing.T) {
	// Arrange
	bus := NewBus(zap.NewNop())
	a, unsubA := bus.Subscribe(4)
	defer unsubA()
	b, unsubB := bus.Subscribe(4)
	defer unsubB()

	// Act
	bus.Publish(Event{Kind: TradeExecuted, Segment: "equities", Payload: TradePayload{Symbol: "AAPL", Side: "BUY"}})

	// Assert
	for _, ch := range []<-chan Event{a, b} {
		select {
		case e := <-ch:
			assert.Equal(t, TradeExecuted, e.Kind)
			assert.False(t, e.Time.IsZero())
			p, ok := e.Payload.(TradePayload)
			require.True(t, ok)
			assert.Equal(t, "AAPL", p.Symbol)
		default:
			t.Fatal("expected event")
		}
	}
}

func TestBus_FullBufferDropsWithoutBlocking(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Publish(Event{Kind: CycleStarted})
	bus.Publish(Event{Kind: CycleFinished})

	assert.Equal(t, int64(1), bus.Dropped())
	e := <-ch
	assert.Equal(t, CycleStarted, e.Kind)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch, unsub := bus.Subscribe(1)

	unsub()
	unsub()
	bus.Publish(Event{Kind: CycleStarted})

	_, open := <-ch
	assert.False(t, open)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch, unsub := bus.Subscribe(1)

	bus.Close()
	bus.Publish(Event{Kind: CycleStarted})
	unsub()

	_, open := <-ch
	assert.False(t, open)

	late, _ := bus.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
}
