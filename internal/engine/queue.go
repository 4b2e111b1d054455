package engine

import (
	"container/heap"
	"time"
)

type tickKind int

const (
	// tickSubAction completes the next sub-action of the track's stage.
	tickSubAction tickKind = iota
	// tickActivate hands over to the track's next stage.
	tickActivate
	// tickEnterSection starts the section following an opened barrier.
	tickEnterSection
)

// tick is one scheduled event of the timeline.
type tick struct {
	due     time.Duration
	seq     uint64
	kind    tickKind
	track   *track
	section int
}

// tickQueue orders ticks by due time, then by scheduling order.
type tickQueue []*tick

func (q tickQueue) Len() int { return len(q) }

func (q tickQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}

func (q tickQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *tickQueue) Push(x any) { *q = append(*q, x.(*tick)) }

func (q *tickQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}

func (q *tickQueue) push(t *tick) { heap.Push(q, t) }

func (q *tickQueue) pop() *tick { return heap.Pop(q).(*tick) }

func (q tickQueue) peek() *tick { return q[0] }
