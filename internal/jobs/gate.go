package jobs

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// OwnerCapFunc resolves the concurrent-running cap for an owner. The cap is
// external input (subscription tier), not computed here.
type OwnerCapFunc func(owner string) int

// Gate enforces the two admission limits: a per-owner running cap and a
// process-wide running cap. Both must have headroom for a job to start.
type Gate struct {
	global *semaphore.Weighted

	mu      sync.Mutex
	running map[string]int
	capFor  OwnerCapFunc
}

// NewGate creates a gate with the given process-wide cap and per-owner
// cap resolver.
func NewGate(globalMax int, capFor OwnerCapFunc) *Gate {
	if globalMax <= 0 {
		globalMax = 1
	}
	return &Gate{
		global:  semaphore.NewWeighted(int64(globalMax)),
		running: make(map[string]int),
		capFor:  capFor,
	}
}

// TryAcquire claims a running slot for owner if both caps have headroom.
// Never blocks.
func (g *Gate) TryAcquire(owner string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	ownerCap := g.capFor(owner)
	if ownerCap <= 0 {
		ownerCap = 1
	}
	if g.running[owner] >= ownerCap {
		return false
	}
	if !g.global.TryAcquire(1) {
		return false
	}
	g.running[owner]++
	return true
}

// Release returns a running slot claimed by TryAcquire.
func (g *Gate) Release(owner string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running[owner] > 0 {
		g.running[owner]--
		if g.running[owner] == 0 {
			delete(g.running, owner)
		}
		g.global.Release(1)
	}
}

// Running returns the owner's current running count.
func (g *Gate) Running(owner string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running[owner]
}
