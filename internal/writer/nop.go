package writer

import (
	"context"

	"github.com/rickgao/feedstream/internal/model"
)

// NopStore accepts and discards everything.
type NopStore struct{}

func (NopStore) InsertTicks(_ context.Context, ticks []model.Tick) (int, error) {
	return len(ticks), nil
}

func (NopStore) InsertConnectionMetrics(context.Context, model.ConnectionMetrics) error {
	return nil
}

func (NopStore) Close() error { return nil }
