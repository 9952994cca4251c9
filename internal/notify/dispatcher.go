// internal/notify/dispatcher.go
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"libracirc/internal/apperr"
	"libracirc/internal/clock"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Sink delivers or records a rendered message.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, m Message) error
}

// Dispatcher renders notices and fans each message out to every sink.
type Dispatcher struct {
	sinks  []Sink
	clock  clock.Clock
	logger *slog.Logger
}

func NewDispatcher(logger *slog.Logger, clk clock.Clock, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, clock: clk, logger: logger}
}

// Send renders n and delivers it to recipient.
func (d *Dispatcher) Send(ctx context.Context, n Notice, recipient string) (*Message, error) {
	subject, body := Render(n)
	return d.deliver(ctx, n.Kind(), subject, body, recipient)
}

// Dispatch delivers a free-form message.
func (d *Dispatcher) Dispatch(ctx context.Context, subject, message, recipient string) (*Message, error) {
	return d.deliver(ctx, KindCustom, subject, message, recipient)
}

func (d *Dispatcher) deliver(ctx context.Context, kind Kind, subject, body, recipient string) (*Message, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, apperr.InvalidArgument("%s notice has no recipient address", kind)
	}

	m := Message{
		ID:          uuid.New(),
		Kind:        kind,
		Subject:     subject,
		Body:        body,
		Recipient:   recipient,
		CreatedAt:   d.clock.Now(),
		Fingerprint: Fingerprint(kind, subject, body, recipient),
	}

	// Every sink gets its chance; one failing sink does not stop the others.
	errs := make([]error, len(d.sinks))
	var g errgroup.Group
	for i, sink := range d.sinks {
		g.Go(func() error {
			if err := sink.Deliver(ctx, m); err != nil {
				errs[i] = fmt.Errorf("%s: %w", sink.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return &m, apperr.DependencyFailure(err, "failed to deliver %s notice to %s", kind, recipient)
	}
	d.logger.Debug("notification delivered", "kind", kind, "recipient", recipient, "sinks", len(d.sinks))
	return &m, nil
}
