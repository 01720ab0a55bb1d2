package lock

import (
	"sync"

	"relstore/pkg/concurrency/transaction"
	"relstore/pkg/primitives"
)

const noUpgrader transaction.ID = -1

// request is one transaction's position in a resource's queue.
type request struct {
	txn     *transaction.Transaction
	mode    Mode
	table   primitives.TableID
	rid     primitives.RID
	onRow   bool
	granted bool
}

// requestQueue is the per-resource FIFO of lock requests. One mutex and
// condition variable serve the whole queue; at most one upgrade may be
// in flight at a time.
type requestQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	requests  []*request
	upgrading transaction.ID
}

func newRequestQueue() *requestQueue {
	q := &requestQueue{upgrading: noUpgrader}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// findByTxn returns the queue entry for id, granted or not.
func (q *requestQueue) findByTxn(id transaction.ID) *request {
	for _, r := range q.requests {
		if r.txn.ID() == id {
			return r
		}
	}
	return nil
}

// remove drops r from the queue.
func (q *requestQueue) remove(r *request) {
	for i, cur := range q.requests {
		if cur == r {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

// insertAfterGranted places r immediately after the last granted
// request, ahead of every waiter. This is the upgrade position.
func (q *requestQueue) insertAfterGranted(r *request) {
	i := 0
	for i < len(q.requests) && q.requests[i].granted {
		i++
	}
	q.requests = append(q.requests, nil)
	copy(q.requests[i+1:], q.requests[i:])
	q.requests[i] = r
}

// canGrant implements the queue protocol: r is grantable iff it is
// compatible with every granted request and no ungranted request sits
// ahead of it.
func (q *requestQueue) canGrant(r *request) bool {
	for _, cur := range q.requests {
		if cur == r {
			return true
		}
		if cur.granted {
			if !Compatible(cur.mode, r.mode) {
				return false
			}
			continue
		}
		// An earlier waiter blocks r regardless of mode: grants are FIFO
		// among waiters.
		return false
	}
	return false
}

// grantedModes snapshots the modes currently granted (for invariant
// checks and the inspector).
func (q *requestQueue) grantedModes() []Mode {
	q.mu.Lock()
	defer q.mu.Unlock()
	var modes []Mode
	for _, r := range q.requests {
		if r.granted {
			modes = append(modes, r.mode)
		}
	}
	return modes
}
