package filereader

import (
	"os"
	"sync"
	"time"

	"github.com/BareMetalEngine/bm-core-sub002/corelog"
	"github.com/BareMetalEngine/bm-core-sub002/internal/scopetime"
	"github.com/BareMetalEngine/bm-core-sub002/internal/syncx"
)

// slowReadThreshold is the elapsed ReadAt duration past which service
// logs a warning, per the source engine's scopeTimingBlock use around
// its file I/O calls.
const slowReadThreshold = 20 * time.Millisecond

// ioToken is one queued async read request (spec §4.6 "tokens
// containing {overlapped, file handle, dest, size, callback,
// index}"). There is no overlapped-I/O equivalent in Go's portable
// os.File API, so the dispatcher performs a plain blocking ReadAt on
// its dedicated goroutine instead of an alertable wait; from the
// caller's perspective the contract (callback fires exactly once, off
// the calling goroutine, with bytes-read or a negative error code) is
// unchanged.
type ioToken struct {
	path     string
	rng      AbsoluteRange
	dest     []byte
	callback ReadCallback
}

// Dispatcher is the single dedicated I/O goroutine spec §4.6
// describes: requests queue up, a counting semaphore wakes the
// goroutine, which drains and services them one at a time.
//
// Grounded on the teacher's eventloop main loop (loop.go: a single
// goroutine blocks on a wakeup primitive, then drains a queue) with
// the MPSC ring in eventloop/ingress.go simplified to a mutex-guarded
// slice, since FR's read volume does not need lock-free throughput.
type Dispatcher struct {
	mu      sync.Mutex
	queue   []ioToken
	sem     *syncx.Semaphore
	closing bool
	closed  chan struct{}
	log     *corelog.Logger
}

// NewDispatcher starts a Dispatcher's I/O goroutine with logging
// disabled; use NewDispatcherWithLogger to surface slow-read warnings.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithLogger(corelog.Disabled())
}

// NewDispatcherWithLogger starts a Dispatcher's I/O goroutine, logging
// slow ReadAt calls through log.
func NewDispatcherWithLogger(log *corelog.Logger) *Dispatcher {
	d := &Dispatcher{
		sem:    syncx.NewSemaphore(0, 1<<20),
		closed: make(chan struct{}),
		log:    log,
	}
	go d.loop()
	return d
}

func (d *Dispatcher) schedule(t ioToken) {
	if t.rng.Empty() {
		t.callback(0)
		return
	}
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		t.callback(-1)
		return
	}
	d.queue = append(d.queue, t)
	d.mu.Unlock()
	d.sem.Release(1)
}

func (d *Dispatcher) pop() (ioToken, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return ioToken{}, false
	}
	t := d.queue[0]
	d.queue = d.queue[1:]
	return t, true
}

func (d *Dispatcher) loop() {
	defer close(d.closed)
	for {
		d.sem.Acquire()
		t, ok := d.pop()
		if !ok {
			d.mu.Lock()
			draining := d.closing
			d.mu.Unlock()
			if draining {
				return
			}
			continue
		}
		d.service(t)
	}
}

func (d *Dispatcher) service(t ioToken) {
	d.mu.Lock()
	closing := d.closing
	d.mu.Unlock()
	if closing {
		// Shutdown requested: drain remaining tokens without
		// dispatch, per spec §4.6.
		t.callback(-1)
		return
	}

	f, err := os.Open(t.path)
	if err != nil {
		t.callback(-1)
		return
	}
	defer f.Close()

	want := t.rng.Len()
	dest := t.dest
	if uint64(len(dest)) > want {
		dest = dest[:want]
	}
	stop := scopetime.StartIfSlow(slowReadThreshold, func(elapsed time.Duration) {
		d.log.Warning("filereader: slow ReadAt %q range=%v took %s", t.path, t.rng, elapsed)
	})
	n, err := f.ReadAt(dest, int64(t.rng.Start))
	stop()
	if err != nil && n == 0 {
		t.callback(-1)
		return
	}
	t.callback(n)
}

// Shutdown sets the exit flag and releases enough semaphore permits to
// unblock the goroutine, which then drains any remaining tokens
// without servicing them (spec §4.6 "Graceful shutdown").
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	d.closing = true
	pending := len(d.queue)
	d.mu.Unlock()
	d.sem.Release(pending + 1)
	<-d.closed
}

var (
	defaultDispatcherOnce sync.Once
	defaultDispatcherInst *Dispatcher
)

func defaultDispatcher() *Dispatcher {
	defaultDispatcherOnce.Do(func() { defaultDispatcherInst = NewDispatcher() })
	return defaultDispatcherInst
}
