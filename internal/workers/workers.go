package workers

type Workers struct {
	workers []Worker
}

// NewWorkers bundles background workers so the daemon can start them all
// with one call.
func NewWorkers(ws ...Worker) *Workers {
	return &Workers{workers: ws}
}

func (w *Workers) Run() {
	for _, worker := range w.workers {
		worker.Run()
	}
}
