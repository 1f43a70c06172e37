package service

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ApplyFunc sends one brightness level to the device
type ApplyFunc func(ctx context.Context, level float64) error

// LevelQueue hands brightness commands from callbacks that must not block
// to a single worker. It holds at most one pending level: a newer level
// replaces one that has not been picked up yet, so the last command
// received is always the last one applied.
type LevelQueue struct {
	ch chan float64
}

// NewLevelQueue creates an empty queue
func NewLevelQueue() *LevelQueue {
	return &LevelQueue{ch: make(chan float64, 1)}
}

// Submit queues level, replacing any level still pending. It never blocks.
func (q *LevelQueue) Submit(level float64) {
	for {
		select {
		case q.ch <- level:
			return
		default:
		}

		select {
		case old := <-q.ch:
			log.Debug().Float64("dropped", old).Float64("level", level).Msg("superseded pending brightness")
		default:
		}
	}
}

// Run applies queued levels one at a time until ctx is cancelled. Failures
// are logged and do not stop the worker.
func (q *LevelQueue) Run(ctx context.Context, apply ApplyFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case level := <-q.ch:
			if err := apply(ctx, level); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Float64("level", level).Msg("brightness command failed")
			}
		}
	}
}
