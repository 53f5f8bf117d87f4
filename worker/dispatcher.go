package worker

// Job is one deferred callback invocation handed off by a worker core
// to a dedicated pool, instead of running inline and risking packet
// drops if the callback blocks.
type Job struct {
	Callback string
	View     any
}

// Dispatcher is the basic_dispatching bounded ring named in the
// concurrency model: a producer (the worker core) enqueues
// non-blockingly and sheds with drop-newest when full; one or more
// consumer goroutines drain it off the datapath.
type Dispatcher struct {
	jobs    chan Job
	dropped func()
}

// NewDispatcher allocates a ring of the given capacity. Capacity 0
// still works: an enqueue succeeds only if a consumer is already
// waiting to receive and is shed otherwise, which is a valid
// (if degenerate) configuration for an application with no non-inline
// callbacks.
func NewDispatcher(capacity int) *Dispatcher {
	if capacity < 0 {
		capacity = 0
	}
	return &Dispatcher{jobs: make(chan Job, capacity)}
}

// OnDrop installs a callback invoked whenever Enqueue sheds a job, so
// the owning Core can bump a stats counter without this package
// depending on package stats.
func (d *Dispatcher) OnDrop(f func()) { d.dropped = f }

// Enqueue attempts to hand job off to a consumer. It never blocks: a
// full ring sheds the new job (drop-newest), keeping the producer's
// datapath latency bounded.
func (d *Dispatcher) Enqueue(job Job) bool {
	select {
	case d.jobs <- job:
		return true
	default:
		if d.dropped != nil {
			d.dropped()
		}
		return false
	}
}

// Jobs exposes the receive side for a consumer pool to range over.
func (d *Dispatcher) Jobs() <-chan Job { return d.jobs }
