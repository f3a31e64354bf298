package common

import (
	"errors"
	"sync/atomic"
)

var ErrReentrantCall = errors.New("reentrant call")

// ReentrancyGuard rejects nested entry into a guarded call. Callers pair Enter
// with a deferred Leave:
//
//	if err := g.Enter(); err != nil {
//		return err
//	}
//	defer g.Leave()
type ReentrancyGuard struct {
	busy atomic.Bool
}

// Enter marks the guard busy or fails with ErrReentrantCall when a call is
// already in progress.
func (g *ReentrancyGuard) Enter() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (g *ReentrancyGuard) Leave() {
	g.busy.Store(false)
}

// Busy reports whether a guarded call is in progress.
func (g *ReentrancyGuard) Busy() bool {
	return g.busy.Load()
}
