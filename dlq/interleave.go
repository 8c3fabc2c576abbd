package dlq

import (
	"sync"
	"time"
)

// turnIdleTimeout bounds how long one side's turn can sit unclaimed by the
// other before it is reclaimed automatically. Replay only makes progress
// when the live path keeps calling allowLive (and vice versa); if the
// other side simply isn't running right now -- no live traffic at all
// during a standalone replay, or no replay in progress -- the turn would
// otherwise never flip and the waiting side would block forever.
const turnIdleTimeout = 20 * time.Millisecond

// interleaveController alternates admission between replay traffic and
// live traffic in blocks of ratio, so a bulk replay never starves the live
// ingest path. A single instance is shared by the DLQ's Replay and the
// live Consume path for the lifetime of the Store (spec.md §4.3: "the
// interleaver exposes two query predicates AllowReplay() and AllowLive(),
// each of which both returns a boolean and consumes a slot when true").
//
// The teacher's InterleaveController (storage.go) flips replayAllowed and
// liveAllowed from inside AllowReplay/AllowLive while holding its own
// mutex, but callers observe the return value *after* the lock is
// released: two replay workers racing AllowReplay can both read
// replayAllowed==true, both increment the counter past ratio, and both
// proceed in the same slot meant for one -- the swap to live traffic
// happens a call late. This version makes "check current turn, consume
// one unit, flip if exhausted" one atomic critical section keyed on which
// side is currently turn-holding, so at most ratio callers of the correct
// side ever return true before the turn flips.
type interleaveController struct {
	mu        sync.Mutex
	ratio     int
	replay    bool // true: replay's turn; false: live's turn
	counter   int
	turnSince time.Time
}

func newInterleaveController(ratio int) *interleaveController {
	if ratio < 1 {
		ratio = 1
	}
	return &interleaveController{ratio: ratio, replay: true, turnSince: time.Now()}
}

func (c *interleaveController) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replay = true
	c.counter = 0
	c.turnSince = time.Now()
}

// reclaimStaleTurnLocked flips the turn if the side currently holding it
// hasn't been claimed within turnIdleTimeout, so an idle side (no replay in
// progress, or no live traffic arriving) can never wedge the other side
// indefinitely. Callers must hold c.mu.
func (c *interleaveController) reclaimStaleTurnLocked() {
	if time.Since(c.turnSince) > turnIdleTimeout {
		c.replay = !c.replay
		c.counter = 0
		c.turnSince = time.Now()
	}
}

// allowReplay reports whether the caller may admit one replay record now,
// consuming one unit of the current turn if so.
func (c *interleaveController) allowReplay() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reclaimStaleTurnLocked()
	if !c.replay {
		return false
	}
	c.counter++
	if c.counter >= c.ratio {
		c.replay = false
		c.counter = 0
		c.turnSince = time.Now()
	}
	return true
}

// allowLive reports whether the caller may admit one live record now.
func (c *interleaveController) allowLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reclaimStaleTurnLocked()
	if c.replay {
		return false
	}
	c.counter++
	if c.counter >= c.ratio {
		c.replay = true
		c.counter = 0
		c.turnSince = time.Now()
	}
	return true
}
