package push

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

type fakeClient struct {
	lastMsg *messaging.MulticastMessage
	resp    *messaging.BatchResponse
	err     error
}

func (f *fakeClient) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.lastMsg = m
	return f.resp, f.err
}

type fakeDeactivator struct {
	tokens []string
}

func (f *fakeDeactivator) Deactivate(token string) error {
	f.tokens = append(f.tokens, token)
	return nil
}

func newTestAdapter(c *fakeClient, d *fakeDeactivator) *Adapter {
	a := New(Config{CredentialsFile: "creds.json"}, d, zap.NewNop())
	a.newClient = func(context.Context, string) (client, error) { return c, nil }
	return a
}

func TestSend_NotConfigured(t *testing.T) {
	a := New(Config{}, &fakeDeactivator{}, zap.NewNop())
	_, err := a.Send(context.Background(), []string{"tok"}, Notification{Title: "t"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestSend_PayloadNormalization(t *testing.T) {
	badge := 3
	fc := &fakeClient{resp: &messaging.BatchResponse{
		SuccessCount: 1,
		Responses:    []*messaging.SendResponse{{Success: true}},
	}}
	a := newTestAdapter(fc, &fakeDeactivator{})

	res, err := a.Send(context.Background(), []string{"tok-1"}, Notification{
		Title:    "Morning summary",
		Body:     "You slept 7h 40m",
		Badge:    &badge,
		Sound:    "chime",
		Data:     map[string]string{"type": "morning_summary"},
		Priority: "high",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.DevicesReached != 1 {
		t.Fatalf("want 1 device reached, got %d", res.DevicesReached)
	}

	msg := fc.lastMsg
	if msg.Notification.Title != "Morning summary" || msg.Notification.Body != "You slept 7h 40m" {
		t.Fatalf("notification fields not mapped: %+v", msg.Notification)
	}
	if msg.Android.Priority != "high" {
		t.Fatalf("want android priority high, got %s", msg.Android.Priority)
	}
	if msg.APNS.Headers["apns-priority"] != "10" {
		t.Fatalf("want apns-priority 10, got %s", msg.APNS.Headers["apns-priority"])
	}
	if msg.APNS.Payload.Aps.Sound != "chime" {
		t.Fatalf("want sound chime, got %s", msg.APNS.Payload.Aps.Sound)
	}
	if msg.APNS.Payload.Aps.Badge == nil || *msg.APNS.Payload.Aps.Badge != 3 {
		t.Fatal("badge not mapped")
	}
	if msg.Data["type"] != "morning_summary" {
		t.Fatal("custom data not mapped")
	}
}

func TestSend_PartialSuccessIsSuccess(t *testing.T) {
	fc := &fakeClient{resp: &messaging.BatchResponse{
		SuccessCount: 1,
		FailureCount: 1,
		Responses: []*messaging.SendResponse{
			{Success: false, Error: errors.New("registration-token-not-registered")},
			{Success: true},
		},
	}}
	d := &fakeDeactivator{}
	a := newTestAdapter(fc, d)

	res, err := a.Send(context.Background(), []string{"dead-tok", "live-tok"}, Notification{Title: "t"})
	if err != nil {
		t.Fatalf("fan-out with one success must succeed, got %v", err)
	}
	if res.DevicesReached != 1 {
		t.Fatalf("want 1 reached, got %d", res.DevicesReached)
	}
	if len(d.tokens) != 1 || d.tokens[0] != "dead-tok" {
		t.Fatalf("want dead-tok deactivated, got %v", d.tokens)
	}
}

func TestSend_AllPermanent(t *testing.T) {
	fc := &fakeClient{resp: &messaging.BatchResponse{
		FailureCount: 2,
		Responses: []*messaging.SendResponse{
			{Success: false, Error: errors.New("registration-token-not-registered")},
			{Success: false, Error: errors.New("invalid registration token")},
		},
	}}
	d := &fakeDeactivator{}
	a := newTestAdapter(fc, d)

	_, err := a.Send(context.Background(), []string{"a", "b"}, Notification{Title: "t"})
	if !errors.Is(err, ErrAllTargetsInvalid) {
		t.Fatalf("want ErrAllTargetsInvalid, got %v", err)
	}
	if len(d.tokens) != 2 {
		t.Fatalf("want both tokens deactivated, got %v", d.tokens)
	}
}

func TestSend_TransientFailure(t *testing.T) {
	fc := &fakeClient{resp: &messaging.BatchResponse{
		FailureCount: 1,
		Responses: []*messaging.SendResponse{
			{Success: false, Error: errors.New("internal server error")},
		},
	}}
	d := &fakeDeactivator{}
	a := newTestAdapter(fc, d)

	_, err := a.Send(context.Background(), []string{"tok"}, Notification{Title: "t"})
	if err == nil || errors.Is(err, ErrAllTargetsInvalid) || errors.Is(err, ErrNotConfigured) {
		t.Fatalf("want transient error, got %v", err)
	}
	if len(d.tokens) != 0 {
		t.Fatalf("transient failure must not deactivate, got %v", d.tokens)
	}
}

func TestReinitialize_DropsClient(t *testing.T) {
	fc := &fakeClient{resp: &messaging.BatchResponse{
		SuccessCount: 1,
		Responses:    []*messaging.SendResponse{{Success: true}},
	}}
	a := newTestAdapter(fc, &fakeDeactivator{})

	if _, err := a.Send(context.Background(), []string{"tok"}, Notification{}); err != nil {
		t.Fatalf("send: %v", err)
	}

	a.Reinitialize(Config{}) // credentials removed
	_, err := a.Send(context.Background(), []string{"tok"}, Notification{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured after reinit without creds, got %v", err)
	}
}
