// Package events forwards committed ledger events to downstream consumers.
// Publication happens after commit and is at-least-once; consumers
// deduplicate on the event ID or sequence number.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/poyrazK/nameregistry/internal/infrastructure/metrics"
)

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, events []domain.Event) error {
	for _, ev := range events {
		p.logger.InfoContext(ctx, "ledger observation",
			"seq", ev.Seq,
			"id", ev.ID,
			"type", ev.Type,
			"name", ev.Name,
			"occurred_at", ev.OccurredAt,
		)
	}
	return nil
}

type namedPublisher struct {
	name string
	pub  ports.EventPublisher
}

// MultiPublisher fans events out to every registered publisher. A failing
// publisher does not stop the others.
type MultiPublisher struct {
	publishers []namedPublisher
}

func NewMultiPublisher() *MultiPublisher {
	return &MultiPublisher{}
}

// Add registers pub under name, which labels its metrics.
func (m *MultiPublisher) Add(name string, pub ports.EventPublisher) *MultiPublisher {
	m.publishers = append(m.publishers, namedPublisher{name: name, pub: pub})
	return m
}

func (m *MultiPublisher) Len() int {
	return len(m.publishers)
}

func (m *MultiPublisher) Publish(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.pub.Publish(ctx, events); err != nil {
			metrics.EventsPublished.WithLabelValues(p.name, "error").Add(float64(len(events)))
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
			continue
		}
		metrics.EventsPublished.WithLabelValues(p.name, "ok").Add(float64(len(events)))
	}
	return errors.Join(errs...)
}

var (
	_ ports.EventPublisher = (*LogPublisher)(nil)
	_ ports.EventPublisher = (*MultiPublisher)(nil)
)
