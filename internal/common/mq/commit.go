package mq

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

// commitOrder holds fetched messages until every earlier message of the same
// partition has been handled, so a committed offset never skips an event
// that is still in flight.
type commitOrder struct {
	mu      sync.Mutex
	pending map[int][]*inflight
}

type inflight struct {
	msg  kafka.Message
	done bool
}

func newCommitOrder() *commitOrder {
	return &commitOrder{pending: make(map[int][]*inflight)}
}

// track registers msg in fetch order.
func (o *commitOrder) track(msg kafka.Message) *inflight {
	o.mu.Lock()
	defer o.mu.Unlock()
	f := &inflight{msg: msg}
	o.pending[msg.Partition] = append(o.pending[msg.Partition], f)
	return f
}

// complete marks f handled and returns the contiguous run of handled
// messages at the head of its partition, oldest first.
func (o *commitOrder) complete(f *inflight) []kafka.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	f.done = true
	partition := f.msg.Partition
	queue := o.pending[partition]
	n := 0
	for n < len(queue) && queue[n].done {
		n++
	}
	if n == 0 {
		return nil
	}
	ready := make([]kafka.Message, n)
	for i := 0; i < n; i++ {
		ready[i] = queue[i].msg
	}
	if n == len(queue) {
		delete(o.pending, partition)
	} else {
		o.pending[partition] = queue[n:]
	}
	return ready
}
