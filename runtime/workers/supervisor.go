package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud-connect/contract"
	apperrors "cloud-connect/errors"
)

// Supervisor runs each worker in a goroutine, recovers panics, restarts
// failed workers after the configured interval, and waits for all
// goroutines on shutdown. A failure in one worker must not stop the
// supervisor itself.
type Supervisor struct {
	Cancel          context.CancelFunc
	wg              *sync.WaitGroup
	log             *slog.Logger
	restartInterval time.Duration
	workers         []contract.Worker
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	return &Supervisor{
		wg:              &sync.WaitGroup{},
		log:             log,
		restartInterval: restartInterval,
	}
}

func (s *Supervisor) Add(worker ...contract.Worker) *Supervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run creates a local cancellation trigger tied to the parent ctx: if the
// parent cancels, the children cancel; if Stop is called, only the children
// cancel. Blocks until every worker goroutine has returned.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	defer s.Cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

// Start runs a single worker under supervision.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = apperrors.ErrWorkerPanic
					}
				}()
				return worker.Run(ctx)
			}()

			if err != nil {
				s.log.Error("worker failed", "worker", workerName, "error", err)
			}
			if ctx.Err() != nil {
				continue
			}

			select {
			case <-ctx.Done():
			case <-time.After(s.restartInterval):
				s.log.Info(fmt.Sprintf("Restarting : %s", workerName))
			}
		}
	}()
}

func (s *Supervisor) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
}
