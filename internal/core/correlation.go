package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/duplexnet"
)

// DefaultCallTimeout is how long a pending call waits for its response
// before the handler is dropped.
const DefaultCallTimeout = 5 * time.Second

// pendingCall is one registered response handler awaiting a correlated
// reply. The handler is invoked at most once: response delivery and
// timeout expiry are mutually exclusive because both remove the entry
// under the table lock, and expiry checks entry identity first.
type pendingCall struct {
	id      int32
	handler duplexnet.ResponseHandler
	timer   *time.Timer
}

// callTable owns the pending request/response entries, keyed by
// correlation id. Ids are unique among currently pending calls; id 0 is
// reserved and never stored.
type callTable struct {
	mu      sync.Mutex
	pending map[int32]*pendingCall
	timeout time.Duration

	log     zerolog.Logger
	metrics *Metrics
}

func newCallTable(timeout time.Duration, log zerolog.Logger, metrics *Metrics) *callTable {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &callTable{
		pending: make(map[int32]*pendingCall),
		timeout: timeout,
		log:     log,
		metrics: metrics,
	}
}

// register allocates a correlation id, stores the handler and arms the
// expiry timer. The entry must be in the table before the request frame is
// written, so a fast response can never miss it.
func (t *callTable) register(handler duplexnet.ResponseHandler) *pendingCall {
	t.mu.Lock()
	id := newCallID(func(candidate int32) bool {
		_, ok := t.pending[candidate]
		return ok
	})
	pc := &pendingCall{id: id, handler: handler}
	// Armed under the lock so a response racing in cannot observe a nil
	// timer; expire itself takes the lock and cannot run before release.
	pc.timer = time.AfterFunc(t.timeout, func() { t.expire(pc) })
	t.pending[id] = pc
	t.mu.Unlock()

	t.metrics.PendingCalls.Inc()
	return pc
}

// expire drops the handler after the timeout. The entry is removed only if
// it still exists and is still the same object, so a response that won the
// race cannot be double-deleted.
func (t *callTable) expire(pc *pendingCall) {
	t.mu.Lock()
	current, ok := t.pending[pc.id]
	if !ok || current != pc {
		t.mu.Unlock()
		return
	}
	delete(t.pending, pc.id)
	t.mu.Unlock()

	t.metrics.PendingCalls.Dec()
	t.metrics.CallTimeouts.Inc()
	t.log.Debug().Int32("correlation_id", pc.id).Msg("pending call expired")
}

// remove discards an entry whose request write failed; no response will
// ever arrive. Idempotent against a concurrent expiry.
func (t *callTable) remove(pc *pendingCall) {
	t.mu.Lock()
	current, ok := t.pending[pc.id]
	if ok && current == pc {
		delete(t.pending, pc.id)
	}
	t.mu.Unlock()

	pc.timer.Stop()
	if ok && current == pc {
		t.metrics.PendingCalls.Dec()
	}
}

// resolve matches a response frame to its waiting handler and invokes it
// exactly once. An unknown id (already expired, or never issued) is a
// stale response and is silently dropped.
func (t *callTable) resolve(id int32, args []any) bool {
	t.mu.Lock()
	pc, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	pc.timer.Stop()
	t.metrics.PendingCalls.Dec()
	pc.handler(args)
	return true
}

// size reports the number of currently pending calls.
func (t *callTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
