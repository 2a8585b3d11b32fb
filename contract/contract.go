//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"cloud-connect/domain/event"
)

// EventSink is one live connection's inbox. Consume must never block the
// caller beyond the context deadline; a slow consumer loses events rather
// than stalling fan-out.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual naming
// in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
