// Package execution implements the pull-based operator tree. Every
// operator shares the Open/HasNext/Next/Close contract and the lock
// discipline documented per operator; a lock failure aborts the owning
// transaction and unwinds as the error.
package execution

import (
	"fmt"

	"relstore/pkg/tuple"
)

// Executor is a pull iterator over tuples.
type Executor interface {
	// Open prepares the operator, acquiring whatever locks its
	// discipline requires.
	Open() error

	// HasNext reports whether another tuple is available, fetching and
	// caching it as lookahead.
	HasNext() (bool, error)

	// Next returns the next tuple. Calling Next past the end is an
	// error.
	Next() (*tuple.Tuple, error)

	// Close releases operator resources. It does not release
	// transactional locks; those follow 2PL.
	Close() error

	// Schema describes the operator's output tuples.
	Schema() *tuple.Schema
}

// readNextFunc pulls the next tuple from the underlying source; nil
// means end of data.
type readNextFunc func() (*tuple.Tuple, error)

// BaseIterator implements the caching and open-state logic every
// executor shares, delegating actual reads to the operator.
type BaseIterator struct {
	next     *tuple.Tuple
	opened   bool
	readNext readNextFunc
}

func newBaseIterator(readNext readNextFunc) *BaseIterator {
	return &BaseIterator{readNext: readNext}
}

func (it *BaseIterator) markOpened() { it.opened = true }

func (it *BaseIterator) markClosed() {
	it.opened = false
	it.next = nil
}

// HasNext caches one tuple of lookahead.
func (it *BaseIterator) HasNext() (bool, error) {
	if !it.opened {
		return false, fmt.Errorf("iterator not opened")
	}
	if it.next == nil {
		var err error
		it.next, err = it.readNext()
		if err != nil {
			return false, err
		}
	}
	return it.next != nil, nil
}

// Next hands out the cached tuple or reads a fresh one.
func (it *BaseIterator) Next() (*tuple.Tuple, error) {
	has, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("no more tuples")
	}
	t := it.next
	it.next = nil
	return t, nil
}
