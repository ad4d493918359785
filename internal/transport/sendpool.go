package transport

// SendPool replaces the "ad-hoc task spawning per outbound send" pattern
// (teacher: bare `go c.sendMessage(...)`; original_source: bare
// `Thread(target=self.cliente, ...).start()`) with a fixed-size worker
// pool, per the REDESIGN FLAGS item in spec.md §9: correctness never
// depended on one-goroutine-per-send, only on sends not blocking each
// other (head-of-line blocking avoidance, spec.md §5).
type SendPool struct {
	jobs chan sendJob
	done chan struct{}
}

type sendJob struct {
	addr  string
	frame []byte
}

// NewSendPool starts workers goroutines draining a bounded job queue.
// Sending to a full queue from Go drops the job rather than blocking the
// caller indefinitely — fan-outs are advisory/idempotent by design
// (spec.md §5: "the design relies on idempotent state... rather than
// total order"), so a dropped send under extreme load is recoverable by
// the next heartbeat or snapshot.
func NewSendPool(workers, queueSize int) *SendPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	p := &SendPool{
		jobs: make(chan sendJob, queueSize),
		done: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *SendPool) worker() {
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			Dial(job.addr, job.frame, false)
		case <-p.done:
			return
		}
	}
}

// Send enqueues a fire-and-forget frame to addr. Never blocks the
// caller beyond filling the bounded queue.
func (p *SendPool) Send(addr string, frame []byte) {
	select {
	case p.jobs <- sendJob{addr: addr, frame: frame}:
	default:
		// Queue saturated: drop. The membership protocol is designed to
		// tolerate lost fan-out messages (heartbeats and snapshots repeat).
	}
}

// Close stops all workers. Queued-but-undelivered jobs are discarded.
func (p *SendPool) Close() {
	close(p.done)
}
