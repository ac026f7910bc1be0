package worker

type Worker struct {
	pool       *jobChannelPool
	jobChannel chan task
}

func newWorker(pool *jobChannelPool) *Worker {
	return &Worker{
		pool:       pool,
		jobChannel: make(chan task),
	}
}

func (w *Worker) Start() {
	go func() {
		defer w.pool.retire(w.jobChannel)
		for {
			select {
			case t := <-w.jobChannel:
				if t.stop {
					return
				}
				w.pool.execute(t.job)
				w.pool.Release(w.jobChannel)
			case <-w.pool.quit:
				return
			}
		}
	}()
}
