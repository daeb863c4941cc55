package store

import (
	"context"

	"github.com/404minds/gt06-receiver/internal/types"
)

// Store consumes decoded positions from its process channel until it is closed or ctx ends.
// Positions already queued when the close signal arrives are still written.
type Store interface {
	Process(ctx context.Context) error
	GetProcessChan() chan types.Position
	GetCloseChan() chan bool
}

const processQueueSize = 200

// drain hands every position still queued on ch to save without blocking.
func drain(ch chan types.Position, save func(types.Position)) {
	for {
		select {
		case position := <-ch:
			save(position)
		default:
			return
		}
	}
}
