package radio

import "sync"

// ResultHandler receives the outcome of a connect request; nil means success.
type ResultHandler func(err error)

// Correlator matches asynchronous connect outcomes to the request that is
// waiting for them. At most one handler is pending per identity.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]ResultHandler
}

// NewCorrelator returns an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]ResultHandler)}
}

// Register stores handler for id, replacing any handler already pending.
func (c *Correlator) Register(id string, handler ResultHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = handler
}

// Take removes and returns the pending handler for id.
func (c *Correlator) Take(id string) (ResultHandler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return h, ok
}

// Resolve removes the pending handler for id and invokes it with err.
// Resolving an identity with nothing pending does nothing.
func (c *Correlator) Resolve(id string, err error) {
	if h, ok := c.Take(id); ok && h != nil {
		h(err)
	}
}

// TakeAll removes and returns every pending handler.
func (c *Correlator) TakeAll() map[string]ResultHandler {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.pending
	c.pending = make(map[string]ResultHandler)
	return all
}

// Pending reports whether a handler is waiting for id.
func (c *Correlator) Pending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// Len returns the number of pending handlers.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
