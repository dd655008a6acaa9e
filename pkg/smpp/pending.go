package smpp

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type result struct {
	pdu *PDU
	err error
}

// pendingTable correlates outstanding requests with their responses, keyed
// by sequence number. Each waiter receives at most one result.
type pendingTable struct {
	mu      sync.RWMutex
	closed  bool
	waiters cmap.ConcurrentMap[uint32, chan result]
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		waiters: cmap.NewWithCustomShardingFunction[uint32, chan result](func(seq uint32) uint32 {
			return seq
		}),
	}
}

// register adds a waiter for seq. It fails with ErrSessionClosed once the
// table has been drained.
func (t *pendingTable) register(seq uint32) (<-chan result, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrSessionClosed
	}
	ch := make(chan result, 1)
	t.waiters.Set(seq, ch)
	return ch, nil
}

// resolve hands pdu to the waiter for its sequence number. It reports false
// when nobody is waiting for that number.
func (t *pendingTable) resolve(pdu *PDU) bool {
	ch, ok := t.waiters.Pop(pdu.Header.SequenceNum)
	if !ok {
		return false
	}
	ch <- result{pdu: pdu}
	return true
}

func (t *pendingTable) remove(seq uint32) {
	t.waiters.Remove(seq)
}

func (t *pendingTable) has(seq uint32) bool {
	return t.waiters.Has(seq)
}

func (t *pendingTable) len() int {
	return t.waiters.Count()
}

// failAll closes the table and fails every remaining waiter with err.
func (t *pendingTable) failAll(err error) int {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	failed := 0
	for _, seq := range t.waiters.Keys() {
		if ch, ok := t.waiters.Pop(seq); ok {
			ch <- result{err: err}
			failed++
		}
	}
	return failed
}
