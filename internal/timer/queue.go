package timer

import (
	"container/heap"

	"github.com/roach88/partd/internal/types"
)

// timerQueue is a min-heap of timer keys ordered by TimerKey.Before.
type timerQueue []types.TimerKey

func (q timerQueue) Len() int           { return len(q) }
func (q timerQueue) Less(i, j int) bool { return q[i].Before(q[j]) }
func (q timerQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) { *q = append(*q, x.(types.TimerKey)) }

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	k := old[n-1]
	*q = old[:n-1]
	return k
}

func (q *timerQueue) add(k types.TimerKey) {
	for _, existing := range *q {
		if existing.Equal(k) {
			return
		}
	}
	heap.Push(q, k)
}

func (q *timerQueue) remove(k types.TimerKey) bool {
	for i, existing := range *q {
		if existing.Equal(k) {
			heap.Remove(q, i)
			return true
		}
	}
	return false
}

func (q timerQueue) peek() (types.TimerKey, bool) {
	if len(q) == 0 {
		return types.TimerKey{}, false
	}
	return q[0], true
}
