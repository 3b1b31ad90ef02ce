// Package authevents carries login outcomes from the authentication component to the
// lockout state machine and the security event recorder.
package authevents

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Kind is the outcome of one authentication attempt.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// Event describes one authentication attempt. UserID is 0 when the email matched no account.
type Event struct {
	Kind      Kind      `json:"kind"`
	UserID    uint      `json:"user_id,omitempty"`
	Email     string    `json:"email"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Handler consumes an event. Returned errors are reported to the publisher when the bus
// delivers synchronously and logged otherwise.
type Handler func(ctx context.Context, ev Event) error

// Bus fans authentication events out to every subscribed handler.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(h Handler)
}

// LocalBus delivers events synchronously inside the publishing goroutine.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish runs every handler in subscription order and joins their errors.
func (b *LocalBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
