package lobby

import "sync"

// outChanSize bounds how many outbound frames may queue per connection
// before the peer is considered dead. With at most 4 clients per lobby a
// healthy consumer never gets close to this.
const outChanSize = 32

// Conn is one live client channel. It is anonymous until a create or join
// succeeds, at which point the registry binds it to that player's handle.
// The transport itself (websocket read/write pumps) lives in the handlers
// package; Conn only owns the outbound queue.
type Conn struct {
	mu     sync.Mutex
	handle string
	dead   bool

	out  chan any
	done chan struct{}
}

// NewConn returns an unbound connection with an empty outbound queue.
func NewConn() *Conn {
	return &Conn{
		out:  make(chan any, outChanSize),
		done: make(chan struct{}),
	}
}

// Handle returns the player handle bound to this connection, or "" while
// the connection is still anonymous.
func (c *Conn) Handle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

func (c *Conn) bind(handle string) {
	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()
}

// Send queues msg without blocking. It reports false when the connection is
// closed or its queue is saturated; callers treat false as a dead peer and
// prune it.
func (c *Conn) Send(msg any) bool {
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.out <- msg:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close marks the connection dead and wakes its write pump. Idempotent.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return
	}
	c.dead = true
	c.mu.Unlock()
	close(c.done)
}

// Out is the outbound frame queue, consumed by the write pump.
func (c *Conn) Out() <-chan any { return c.out }

// Done is closed once the connection has been shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }
