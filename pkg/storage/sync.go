package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/tbwo/engine/pkg/tbworder"
)

// DefaultSyncInterval is how often a Syncer flushes the in-memory Store to
// the Persistor. Grounded on the teacher's pkg/mcp/health.go and
// pkg/queue/orphan.go ticker-loop shape.
const DefaultSyncInterval = 10 * time.Second

// Syncer periodically persists every WorkOrder in a tbworder.Store through
// a Persistor, so in-memory engine mutations (which never call Persistor.Save
// directly) eventually reach durable storage without coupling pkg/engine to
// pkg/storage.
type Syncer struct {
	store     *tbworder.Store
	persistor *Persistor
	interval  time.Duration
	log       *slog.Logger
}

// NewSyncer constructs a Syncer with DefaultSyncInterval.
func NewSyncer(store *tbworder.Store, persistor *Persistor, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{store: store, persistor: persistor, interval: DefaultSyncInterval, log: log}
}

// LoadAll loads every persisted WorkOrder into the Store, for use at
// startup before the engine or API begin serving requests.
func (s *Syncer) LoadAll(ctx context.Context) error {
	workOrders, err := s.persistor.List(ctx)
	if err != nil {
		return err
	}
	for _, wo := range workOrders {
		s.store.Put(wo)
	}
	s.log.Info("loaded persisted work orders", "count", len(workOrders))
	return nil
}

// Run flushes the Store to the Persistor every interval until ctx is
// cancelled. Intended to run in its own goroutine for the life of the
// process.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			return
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *Syncer) flush(ctx context.Context) {
	for _, wo := range s.store.List() {
		if err := s.persistor.Save(ctx, wo); err != nil {
			s.log.Error("failed to persist work order", "workOrderId", wo.ID, "error", err)
		}
	}
}
