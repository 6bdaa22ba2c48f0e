package engine

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// TickSource drives the periodic populate/worker cycles. Production wraps a
// cron scheduler; tests call RunOnce on the components directly instead of
// waiting on real timers.
type TickSource interface {
	// Every registers fn to run at the given interval once Start is called
	Every(interval time.Duration, fn func()) error
	Start()
	// Stop removes the tick handles. Functions already running are not
	// interrupted.
	Stop()
}

// CronTickSource is the production TickSource backed by robfig/cron
type CronTickSource struct {
	c *cron.Cron
}

func NewCronTickSource() *CronTickSource {
	return &CronTickSource{c: cron.New()}
}

func (t *CronTickSource) Every(interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid tick interval %s", interval)
	}
	_, err := t.c.AddFunc(fmt.Sprintf("@every %s", interval), fn)
	return err
}

func (t *CronTickSource) Start() { t.c.Start() }

func (t *CronTickSource) Stop() {
	// cron.Stop returns a ctx that completes when running jobs finish; the
	// engine service tracks in-flight work itself, so no need to wait here.
	t.c.Stop()
}
