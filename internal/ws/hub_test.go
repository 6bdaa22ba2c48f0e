package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/model"
	"go.uber.org/zap"
)

func TestHub_ForwardsEventsToClients(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := &Client{hub: h, send: make(chan []byte, 8), log: zap.NewNop()}
	h.Register(c)

	want := model.DeliveryEvent{
		QueueEntryID:   uuid.New(),
		UserID:         uuid.New(),
		Type:           model.TypeMorningSummary,
		Outcome:        model.OutcomeSuccess,
		DevicesReached: 2,
		At:             time.Now().UTC(),
	}
	h.Publish(want)

	select {
	case data := <-c.send:
		var got model.DeliveryEvent
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.QueueEntryID != want.QueueEntryID || got.Outcome != want.Outcome {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("event never reached the client")
	}
}

func TestHub_PublishNeverBlocksDispatch(t *testing.T) {
	// Loop deliberately not running: nothing drains the backlog, so Publish
	// must fill the buffer and then drop.
	h := NewHub(nil, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1024; i++ {
			h.Publish(model.DeliveryEvent{QueueEntryID: uuid.New()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with a full backlog")
	}
}
