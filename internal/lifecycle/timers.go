package lifecycle

import (
	"container/heap"
	"time"

	"github.com/gravitas-games/screwsort/pkg/models"
)

type timerKind int

const (
	timerRemoval timerKind = iota
	timerShake
)

type timer struct {
	at        time.Time
	seq       uint64
	kind      timerKind
	container models.ContainerID
	item      models.ItemID
}

// timerHeap is a min-heap of timers ordered by due time, then by insertion.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(*timer)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

func (h *timerHeap) peek() *timer {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// due pops every timer whose time has come, earliest first.
func (h *timerHeap) due(now time.Time) []*timer {
	var out []*timer
	for t := h.peek(); t != nil && !now.Before(t.at); t = h.peek() {
		heap.Pop(h)
		out = append(out, t)
	}
	return out
}
