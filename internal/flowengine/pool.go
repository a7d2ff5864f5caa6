package flowengine

import "container/heap"

// pool is a count-capped resource with FIFO waiters, the re-architecture of
// SimPy's simpy.Resource used for reception desks, triage boxes, and
// observation beds (spec section 4.3's "count-capped pool (FIFO)").
type pool struct {
	capacity int
	busy     int
	waiters  []func()
}

func newPool(capacity int) *pool { return &pool{capacity: capacity} }

// acquire runs onAcquire immediately if a slot is free, otherwise queues it
// to run (in arrival order) once release() frees a slot.
func (p *pool) acquire(onAcquire func()) {
	if p.busy < p.capacity {
		p.busy++
		onAcquire()
		return
	}
	p.waiters = append(p.waiters, onAcquire)
}

// release frees one slot and, if anyone is waiting, immediately hands the
// slot to the longest-waiting caller.
func (p *pool) release() {
	if p.busy > 0 {
		p.busy--
	}
	if len(p.waiters) > 0 {
		next := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.busy++
		next()
	}
}

func (p *pool) queueLen() int { return len(p.waiters) }

// consultWaiter is one patient queued for a consult room, ordered by
// triage priority (lower ordinal first) then arrival order.
type consultWaiter struct {
	priority int
	seq      int
	onAcquire func()
}

type consultHeapT []*consultWaiter

func (h consultHeapT) Len() int { return len(h) }
func (h consultHeapT) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h consultHeapT) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *consultHeapT) Push(x any)   { *h = append(*h, x.(*consultWaiter)) }
func (h *consultHeapT) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// consultPool is the priority-capped pool backing ConsultRooms: a min-heap
// keyed on (priority, insertionOrder), exactly the structure spec section 9
// calls for in place of SimPy's PriorityResource.
type consultPool struct {
	capacity int
	busy     int
	waiting  consultHeapT
	seq      int
}

func newConsultPool(capacity int) *consultPool { return &consultPool{capacity: capacity} }

func (p *consultPool) acquire(priority int, onAcquire func()) {
	if p.busy < p.capacity {
		p.busy++
		onAcquire()
		return
	}
	p.seq++
	heap.Push(&p.waiting, &consultWaiter{priority: priority, seq: p.seq, onAcquire: onAcquire})
}

func (p *consultPool) release() {
	if p.busy > 0 {
		p.busy--
	}
	if p.waiting.Len() > 0 {
		next := heap.Pop(&p.waiting).(*consultWaiter)
		p.busy++
		next.onAcquire()
	}
}

func (p *consultPool) queueLen() int { return p.waiting.Len() }
