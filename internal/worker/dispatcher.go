package worker

import (
	"container/list"
	"context"
	"sync"
	"time"

	"drivebot/internal/logger"
)

type chatQueue struct {
	jobs     []Job
	enqueued bool // in the ready list
	running  bool // a job of this chat is on a worker
}

type Dispatcher struct {
	pool   *jobChannelPool
	intake chan Job
	logger logger.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	queues    map[int64]*chatQueue
	ready     *list.List // chat ids with a runnable job, front runs next
	positions map[int64]*list.Element
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, idleTimeout time.Duration, log logger.ILogger) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		intake:    make(chan Job, queueSize),
		logger:    log,
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		queues:    make(map[int64]*chatQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
	}
	d.pool = newJobChannelPool(minWorkers, maxWorkers, idleTimeout, d.execute)

	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	if d.ctx.Err() != nil {
		return ErrDispatcherStopped
	}
	select {
	case d.intake <- job:
		return nil
	default:
		d.logger.Warn(module, "job rejected, queue full", map[string]interface{}{
			"chat_id": job.ChatID,
			"job":     job.Name,
		})
		return ErrDispatcherBusy
	}
}

// Stop cancels the context of running jobs, drops queued ones and retires every
// worker. It waits for the dispatch loop, not for running jobs.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.pool.shutdown()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		if d.ctx.Err() != nil {
			return
		}
		// dispatch one job of the chat at the front of the ready list
		if !d.dispatchOne() {
			select {
			case job := <-d.intake:
				d.enqueueJob(job)
			case <-d.wake:
			case <-d.ctx.Done():
				return
			}
			continue
		}
		select {
		case job := <-d.intake:
			d.enqueueJob(job)
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.ChatID]
	if q == nil {
		q = &chatQueue{}
		d.queues[job.ChatID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued || q.running {
		// finish() puts a running chat back in line
		return
	}
	q.enqueued = true
	d.positions[job.ChatID] = d.ready.PushBack(job.ChatID)
}

// dispatchOne hands the front chat's next job to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	chatID := elem.Value.(int64)
	q := d.queues[chatID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.enqueued = false
	q.running = true
	d.ready.Remove(elem)
	delete(d.positions, chatID)
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	if workerChan == nil {
		return false
	}
	d.logger.Debug(module, "assign job", map[string]interface{}{
		"chat_id":   chatID,
		"job":       job.Name,
		"worker_id": d.pool.workerID(workerChan),
	})
	select {
	case workerChan <- task{job: job}:
		return true
	case <-d.ctx.Done():
		return false
	}
}

// execute runs on a worker goroutine.
func (d *Dispatcher) execute(job Job) {
	defer d.finish(job.ChatID)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(module, "job panicked", map[string]interface{}{
				"chat_id": job.ChatID,
				"job":     job.Name,
				"panic":   r,
			})
		}
	}()
	job.Run(d.ctx)
}

// finish puts the chat back in line if more of its jobs arrived meanwhile.
func (d *Dispatcher) finish(chatID int64) {
	d.mu.Lock()
	q := d.queues[chatID]
	if q != nil {
		q.running = false
		if len(q.jobs) == 0 {
			delete(d.queues, chatID)
		} else if !q.enqueued {
			q.enqueued = true
			d.positions[chatID] = d.ready.PushBack(chatID)
		}
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// CancelChat drops the queued (not running) jobs of chatID and returns how many
// were dropped.
func (d *Dispatcher) CancelChat(chatID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, ok := d.queues[chatID]
	if !ok {
		return 0
	}
	dropped := len(q.jobs)
	q.jobs = nil
	if elem, ok := d.positions[chatID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, chatID)
		q.enqueued = false
	}
	if !q.running {
		delete(d.queues, chatID)
	}
	return dropped
}

// Queued returns the number of jobs waiting for chatID, excluding a running one.
func (d *Dispatcher) Queued(chatID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[chatID]; ok {
		return len(q.jobs)
	}
	return 0
}
