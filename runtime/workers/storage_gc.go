package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// StorageGCWorker reclaims Badger value-log space on a ticker. Badger never
// runs value-log GC on its own; without this worker the store only grows.
type StorageGCWorker struct {
	db       *badger.DB
	log      *slog.Logger
	interval time.Duration
}

func NewStorageGCWorker(db *badger.DB, log *slog.Logger, interval time.Duration) *StorageGCWorker {
	return &StorageGCWorker{db: db, log: log, interval: interval}
}

func (w *StorageGCWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Each call rewrites at most one value-log file; loop until
			// Badger reports nothing left to rewrite.
			for {
				err := w.db.RunValueLogGC(0.5)
				if err == badger.ErrNoRewrite {
					break
				}
				if err != nil {
					w.log.Warn("value log GC failed", "error", err)
					break
				}
			}
		}
	}
}
