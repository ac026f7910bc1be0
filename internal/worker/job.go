// Package worker runs bot handlers on a bounded pool of goroutines while keeping the
// jobs of one chat strictly ordered: a chat never has more than one job in flight,
// and chats take turns so one busy chat cannot starve the others.
package worker

import (
	"context"
	"errors"
)

const module = "WORKER"

var (
	ErrDispatcherBusy    = errors.New("worker: dispatcher queue is full")
	ErrDispatcherStopped = errors.New("worker: dispatcher stopped")
)

// Job is one unit of handler work for a chat.
type Job struct {
	ChatID int64
	// Name shows up in logs.
	Name string
	Run  func(ctx context.Context)
}

// task is what travels to a worker goroutine.
type task struct {
	job  Job
	stop bool
}
