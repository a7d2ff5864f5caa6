package flowengine

import "container/heap"

// scheduledEvent is one entry in the engine's event heap: run fn once the
// simulated clock reaches at. seq breaks ties in insertion order so two
// events scheduled for the same instant still run FIFO.
type scheduledEvent struct {
	at  float64
	seq int
	fn  func()
}

type eventHeap []*scheduledEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*scheduledEvent)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// scheduler is a single-threaded discrete-event loop: the re-architecture of
// flow_engine.py's SimPy environment called for by spec section 9's design
// notes ("a single scheduler per hospital"). Nothing here runs concurrently;
// every stage transition is a closure scheduled against a virtual clock.
type scheduler struct {
	now    float64
	events eventHeap
	seq    int
}

func (s *scheduler) schedule(at float64, fn func()) {
	s.seq++
	heap.Push(&s.events, &scheduledEvent{at: at, seq: s.seq, fn: fn})
}

func (s *scheduler) scheduleAfter(delay float64, fn func()) {
	s.schedule(s.now+delay, fn)
}

// advanceTo drains every event due at or before t, advancing s.now as it
// goes, then fast-forwards now to t even if no events were due (so periodic
// callers like the stats snapshot stay aligned with wall-clock-derived t).
func (s *scheduler) advanceTo(t float64) {
	for s.events.Len() > 0 && s.events[0].at <= t {
		ev := heap.Pop(&s.events).(*scheduledEvent)
		s.now = ev.at
		ev.fn()
	}
	if t > s.now {
		s.now = t
	}
}
