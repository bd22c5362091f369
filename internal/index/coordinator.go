package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/vaultrag/internal/embed"
	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
	"github.com/Aman-CERP/vaultrag/internal/vault"
)

// EventSource delivers batches of vault changes. *vault.Watcher
// implements it.
type EventSource interface {
	Events() <-chan []vault.FileEvent
	Errors() <-chan error
}

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// Orchestrator runs the updates (required).
	Orchestrator *Orchestrator

	// Client embeds changed notes (required).
	Client embed.Client

	// Options are passed to every update. ReindexAll is ignored.
	Options Options

	// SkipInitialSync disables the catch-up update Run performs before
	// consuming events.
	SkipInitialSync bool

	// OnUpdate, if set, is called after every update.
	OnUpdate func(*Result, error)

	// Progress is forwarded to UpdateVaultIndex.
	Progress ProgressFunc
}

// Coordinator keeps the index current while a vault is being edited. Each
// batch of file events triggers one incremental UpdateVaultIndex; the
// change detector, not the event, decides what is re-embedded, so missed or
// reordered events cannot leave the index stale.
type Coordinator struct {
	config CoordinatorConfig
}

// NewCoordinator creates a new index coordinator.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if config.Client == nil {
		return nil, fmt.Errorf("embedding client is required")
	}
	config.Options.ReindexAll = false
	return &Coordinator{config: config}, nil
}

// HandleEvents runs one incremental update for a batch of events.
func (c *Coordinator) HandleEvents(ctx context.Context, events []vault.FileEvent) (*Result, error) {
	for _, e := range events {
		slog.Debug("vault_change",
			slog.String("path", e.Path),
			slog.String("op", e.Operation.String()),
			slog.Bool("dir", e.IsDir))
	}
	return c.update(ctx, len(events))
}

func (c *Coordinator) update(ctx context.Context, eventCount int) (*Result, error) {
	result, err := c.config.Orchestrator.UpdateVaultIndex(ctx, c.config.Client, c.config.Options, c.config.Progress)

	attrs := []any{slog.Int("events", eventCount)}
	if result != nil {
		attrs = append(attrs,
			slog.String("run_id", result.RunID),
			slog.Int("embedded", result.Embedded),
			slog.Int("deleted", result.Deleted))
	}
	if err != nil {
		slog.Warn("watch_update_failed", append(attrs, vrerrors.LogAttr(err))...)
	} else {
		slog.Info("watch_update", attrs...)
	}

	if c.config.OnUpdate != nil {
		c.config.OnUpdate(result, err)
	}
	return result, err
}

// Run performs the initial sync, then handles batches from src until ctx
// is cancelled or src closes. Batches that arrive during an update are
// merged into the next one. Failed updates are logged and do not stop
// the loop.
func (c *Coordinator) Run(ctx context.Context, src EventSource) error {
	if !c.config.SkipInitialSync {
		_, _ = c.update(ctx, 0)
	}

	events, errs := src.Events(), src.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))

		case batch, ok := <-events:
			if !ok {
				return nil
			}
			batch = drainPending(events, batch)
			if _, err := c.HandleEvents(ctx, batch); err != nil && ctx.Err() != nil {
				return nil
			}
		}
	}
}

// drainPending appends every batch already queued on events.
func drainPending(events <-chan []vault.FileEvent, batch []vault.FileEvent) []vault.FileEvent {
	for {
		select {
		case more, ok := <-events:
			if !ok {
				return batch
			}
			batch = append(batch, more...)
		default:
			return batch
		}
	}
}
