package lock

import (
	"slices"
	"time"

	"relstore/pkg/concurrency/transaction"
)

// waitsForGraph is the scratch state one detection round builds: edges
// from waiting transactions to the grant holders blocking them, plus
// the queue each waiter sleeps in so a victim can be woken.
type waitsForGraph struct {
	edges     map[transaction.ID][]transaction.ID
	txns      map[transaction.ID]*transaction.Transaction
	waitQueue map[transaction.ID]*requestQueue
}

func newWaitsForGraph() *waitsForGraph {
	return &waitsForGraph{
		edges:     make(map[transaction.ID][]transaction.ID),
		txns:      make(map[transaction.ID]*transaction.Transaction),
		waitQueue: make(map[transaction.ID]*requestQueue),
	}
}

func (g *waitsForGraph) addEdge(from, to transaction.ID) {
	if !slices.Contains(g.edges[from], to) {
		g.edges[from] = append(g.edges[from], to)
	}
}

func (g *waitsForGraph) removeNode(id transaction.ID) {
	delete(g.edges, id)
	for from, tos := range g.edges {
		g.edges[from] = slices.DeleteFunc(tos, func(t transaction.ID) bool { return t == id })
	}
}

// addQueue records one queue's wait edges: every ungranted request
// waits on every granted one.
func (g *waitsForGraph) addQueue(q *requestQueue) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, waiter := range q.requests {
		if waiter.granted {
			continue
		}
		g.txns[waiter.txn.ID()] = waiter.txn
		g.waitQueue[waiter.txn.ID()] = q
		for _, holder := range q.requests {
			if holder.granted && holder.txn.ID() != waiter.txn.ID() {
				g.addEdge(waiter.txn.ID(), holder.txn.ID())
				g.txns[holder.txn.ID()] = holder.txn
			}
		}
	}
}

// findCycle runs depth-first search from every node in ascending id
// order and returns the members of the first cycle found.
func (g *waitsForGraph) findCycle() ([]transaction.ID, bool) {
	starts := make([]transaction.ID, 0, len(g.edges))
	for id := range g.edges {
		starts = append(starts, id)
	}
	slices.Sort(starts)

	for _, start := range starts {
		onPath := make(map[transaction.ID]bool)
		var path []transaction.ID
		if cycle, ok := g.dfs(start, onPath, path); ok {
			return cycle, true
		}
	}
	return nil, false
}

func (g *waitsForGraph) dfs(cur transaction.ID, onPath map[transaction.ID]bool, path []transaction.ID) ([]transaction.ID, bool) {
	if onPath[cur] {
		// Back edge: the cycle is the path suffix starting at cur.
		for i, id := range path {
			if id == cur {
				return path[i:], true
			}
		}
		return path, true
	}
	onPath[cur] = true
	path = append(path, cur)
	next := slices.Clone(g.edges[cur])
	slices.Sort(next)
	for _, to := range next {
		if cycle, ok := g.dfs(to, onPath, path); ok {
			return cycle, ok
		}
	}
	onPath[cur] = false
	return nil, false
}

// runDetector is the background deadlock loop: wake, rebuild the graph,
// abort the youngest member of each cycle, notify its queue, repeat
// until no cycle remains, then drop the scratch state.
func (m *Manager) runDetector(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.detectOnce()
		}
	}
}

// detectOnce performs one detection round.
func (m *Manager) detectOnce() {
	g := newWaitsForGraph()

	m.tableMu.Lock()
	tableQueues := make([]*requestQueue, 0, len(m.tables))
	for _, q := range m.tables {
		tableQueues = append(tableQueues, q)
	}
	m.tableMu.Unlock()
	for _, q := range tableQueues {
		g.addQueue(q)
	}

	m.rowMu.Lock()
	rowQueues := make([]*requestQueue, 0, len(m.rows))
	for _, q := range m.rows {
		rowQueues = append(rowQueues, q)
	}
	m.rowMu.Unlock()
	for _, q := range rowQueues {
		g.addQueue(q)
	}

	for {
		cycle, ok := g.findCycle()
		if !ok {
			return
		}
		victim := slices.Max(cycle)
		if txn := g.txns[victim]; txn != nil {
			txn.SetState(transaction.Aborted)
		}
		q := g.waitQueue[victim]
		g.removeNode(victim)
		if q != nil {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		}
	}
}
