package balancer

import (
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/server"
)

// worker executes queued selections until Shutdown. On stop it fails any
// selections still sitting in the queue so no caller is left waiting.
func (b *Balancer) worker() {
	defer b.wg.Done()

	for {
		select {
		case t := <-b.tasks:
			t.result <- b.selectNode()
		case <-b.stop:
			b.drainTasks()
			return
		}
	}
}

func (b *Balancer) drainTasks() {
	for {
		select {
		case t := <-b.tasks:
			t.result <- Selection{Err: ErrServiceUnavailable}
		default:
			return
		}
	}
}

// selectNode runs one selection. The total-requests counter advances
// exactly once per selection regardless of outcome; its prior value seeds
// the scan start so consecutive selections rotate through the table.
func (b *Balancer) selectNode() Selection {
	start := b.totalRequests.Add(1) - 1

	// Fast path: a server recently confirmed available. Re-queue it at the
	// back so cache hits rotate round-robin. A cached node that went stale
	// or ineligible is simply dropped and the scan below takes over.
	select {
	case n := <-b.cache:
		if b.isCurrent(n) && b.eligible(n) {
			b.cacheNode(n)
			return Selection{Node: n}
		}
	default:
	}

	for i := 0; i < b.capacity; i++ {
		idx := int((start + uint64(i)) % uint64(b.capacity))
		n := b.slots[idx].Load()
		if n == nil || !b.eligible(n) {
			continue
		}

		b.cacheNode(n)
		return Selection{Node: n}
	}

	return Selection{Err: ErrNoHealthyServers}
}

// isCurrent reports whether the node is still the occupant of its slot,
// guarding cache hits against servers removed or overwritten after they
// were cached.
func (b *Balancer) isCurrent(n *server.Node) bool {
	return b.slots[b.slotFor(n.ID())].Load() == n
}
