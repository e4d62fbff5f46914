package writer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/feedstream/internal/model"
)

// MultiStore writes to a primary store and any number of secondary stores
// concurrently. Only the primary decides the result: a failing secondary is
// logged and counted but never fails the batch or cancels the primary write.
type MultiStore struct {
	primary     Store
	secondaries []Store
	logger      *slog.Logger

	secondaryErrors atomic.Int64
}

// NewMultiStore creates a fan-out store. The first non-nil store is the
// primary; nil stores are skipped.
func NewMultiStore(logger *slog.Logger, stores ...Store) *MultiStore {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MultiStore{logger: logger.With("component", "multi_store")}
	for _, s := range stores {
		if s == nil {
			continue
		}
		if m.primary == nil {
			m.primary = s
			continue
		}
		m.secondaries = append(m.secondaries, s)
	}
	return m
}

// SecondaryErrors returns how many secondary-store writes have failed.
func (m *MultiStore) SecondaryErrors() int64 {
	return m.secondaryErrors.Load()
}

// InsertTicks writes ticks to every store and returns the primary's result.
func (m *MultiStore) InsertTicks(ctx context.Context, ticks []model.Tick) (int, error) {
	if m.primary == nil {
		return len(ticks), nil
	}

	var (
		g        errgroup.Group
		inserted int
	)
	g.Go(func() error {
		n, err := m.primary.InsertTicks(ctx, ticks)
		inserted = n
		return err
	})
	for _, s := range m.secondaries {
		g.Go(func() error {
			if _, err := s.InsertTicks(ctx, ticks); err != nil {
				m.secondaryFailed("insert_ticks", len(ticks), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// InsertConnectionMetrics writes the record to every store and returns the
// primary's error.
func (m *MultiStore) InsertConnectionMetrics(ctx context.Context, rec model.ConnectionMetrics) error {
	if m.primary == nil {
		return nil
	}

	var g errgroup.Group
	g.Go(func() error {
		return m.primary.InsertConnectionMetrics(ctx, rec)
	})
	for _, s := range m.secondaries {
		g.Go(func() error {
			if err := s.InsertConnectionMetrics(ctx, rec); err != nil {
				m.secondaryFailed("insert_connection_metrics", 1, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *MultiStore) secondaryFailed(op string, count int, err error) {
	m.secondaryErrors.Add(1)
	m.logger.Warn("secondary store write failed",
		"error", &PersistenceError{Op: op, Count: count, Err: err},
	)
}

// Close closes every store.
func (m *MultiStore) Close() error {
	var errs []error
	if m.primary != nil {
		if err := m.primary.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range m.secondaries {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
