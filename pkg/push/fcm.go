// Package push normalizes outbound notifications into the FCM wire format and
// classifies provider responses into permanent vs. transient failures.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrNotConfigured is returned while no provider credentials are configured.
// Callers count it as a transient dispatch error so affected entries still
// dead-letter instead of retrying forever.
var ErrNotConfigured = errors.New("push provider not configured")

// ErrAllTargetsInvalid is returned when every token in the fan-out was
// rejected permanently. The offending registrations have already been
// deactivated; there is nothing left to retry against.
var ErrAllTargetsInvalid = errors.New("all push targets invalid")

// Notification is the provider-agnostic outbound payload
type Notification struct {
	Title    string
	Body     string
	Badge    *int
	Sound    string
	Data     map[string]string
	Priority string // "high" or "normal" interruption hint
}

// Result describes one fan-out attempt
type Result struct {
	DevicesReached int
	Invalidated    []string // tokens deactivated during this send
}

// Deactivator flags a registration token inactive on permanent provider errors
type Deactivator interface {
	Deactivate(token string) error
}

// client is the slice of messaging.Client the adapter uses; narrowed for tests
type client interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Config holds provider settings
type Config struct {
	CredentialsFile string
	Timeout         time.Duration
}

// Adapter sends notifications through FCM. The provider client is initialized
// lazily on first send and only rebuilt through an explicit Reinitialize.
type Adapter struct {
	mu      sync.Mutex
	cfg     Config
	client  client
	devices Deactivator
	log     *zap.Logger

	// newClient is swapped in tests
	newClient func(ctx context.Context, credentialsFile string) (client, error)
}

// New creates an FCM adapter. No provider calls happen until the first Send.
func New(cfg Config, devices Deactivator, log *zap.Logger) *Adapter {
	return &Adapter{
		cfg:       cfg,
		devices:   devices,
		log:       log,
		newClient: newFCMClient,
	}
}

func newFCMClient(ctx context.Context, credentialsFile string) (client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	c, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}
	return c, nil
}

// Reinitialize replaces the provider configuration and drops the cached
// client; the next Send rebuilds it.
func (a *Adapter) Reinitialize(cfg Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cfg.Timeout <= 0 {
		cfg.Timeout = a.cfg.Timeout
	}
	a.cfg = cfg
	a.client = nil
	a.log.Info("🔄 Push adapter reinitialized", zap.Bool("configured", cfg.CredentialsFile != ""))
}

func (a *Adapter) ensureClient(ctx context.Context) (client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	if a.cfg.CredentialsFile == "" {
		return nil, ErrNotConfigured
	}
	c, err := a.newClient(ctx, a.cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// Send fans a notification out to the given tokens. It succeeds (nil error)
// when at least one token is reached. Permanently rejected tokens are
// deactivated before returning; other failures surface as a transient error
// feeding the caller's retry ladder.
func (a *Adapter) Send(ctx context.Context, tokens []string, n Notification) (Result, error) {
	if len(tokens) == 0 {
		return Result{}, ErrAllTargetsInvalid
	}

	c, err := a.ensureClient(ctx)
	if err != nil {
		return Result{}, err
	}

	timeout := a.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	br, err := c.SendEachForMulticast(callCtx, a.buildMessage(tokens, n))
	if err != nil {
		return Result{}, fmt.Errorf("fcm multicast: %w", err)
	}

	res := Result{DevicesReached: br.SuccessCount}
	transientFailures := 0
	for idx, resp := range br.Responses {
		if resp.Success {
			continue
		}
		if isPermanent(resp.Error) {
			token := tokens[idx]
			if derr := a.devices.Deactivate(token); derr != nil {
				a.log.Error("failed to deactivate invalid token", zap.Error(derr))
			} else {
				res.Invalidated = append(res.Invalidated, token)
			}
			a.log.Warn("⚠️ Push target invalid, registration deactivated", zap.Error(resp.Error))
		} else {
			transientFailures++
			a.log.Warn("⚠️ Transient push failure", zap.Error(resp.Error))
		}
	}

	if res.DevicesReached > 0 {
		return res, nil
	}
	if transientFailures > 0 {
		return res, fmt.Errorf("fcm: %d transient failures, 0 devices reached", transientFailures)
	}
	return res, ErrAllTargetsInvalid
}

// buildMessage normalizes the payload into the FCM wire format
func (a *Adapter) buildMessage(tokens []string, n Notification) *messaging.MulticastMessage {
	androidPriority := "normal"
	apnsPriority := "5"
	if n.Priority == "high" {
		androidPriority = "high"
		apnsPriority = "10"
	}

	sound := n.Sound
	if sound == "" {
		sound = "default"
	}

	aps := &messaging.Aps{Sound: sound}
	if n.Badge != nil {
		aps.Badge = n.Badge
	}

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
		Android: &messaging.AndroidConfig{
			Priority: androidPriority,
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": apnsPriority},
			Payload: &messaging.APNSPayload{Aps: aps},
		},
	}
}

// isPermanent reports whether a per-token error means the target is gone for
// good. Everything else is treated as transient.
func isPermanent(err error) bool {
	if err == nil {
		return false
	}
	if messaging.IsRegistrationTokenNotRegistered(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "registration-token-not-registered") ||
		strings.Contains(msg, "unregistered") ||
		strings.Contains(msg, "invalid registration token")
}
