package generic

import (
	"context"
	"fmt"
	"time"
)

// DefaultLockTimeout bounds how long a writer waits for another to finish.
const DefaultLockTimeout = 5 * time.Second

// TxGate admits one writer at a time and gives up after Timeout instead of
// blocking forever. Stores without row-level locks (memory, sqlite) use it to
// serialize write transactions.
type TxGate struct {
	slot    chan struct{}
	Timeout time.Duration
}

// NewTxGate returns an open gate. A non-positive timeout means DefaultLockTimeout.
func NewTxGate(timeout time.Duration) *TxGate {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &TxGate{slot: make(chan struct{}, 1), Timeout: timeout}
}

// Enter waits for the gate. The returned release func must be called exactly once.
// On timeout the error wraps ErrLockTimeout; on context cancellation it wraps ctx.Err().
func (g *TxGate) Enter(ctx context.Context) (func(), error) {
	timer := time.NewTimer(g.Timeout)
	defer timer.Stop()

	select {
	case g.slot <- struct{}{}:
		return func() { <-g.slot }, nil
	case <-timer.C:
		return nil, fmt.Errorf("waited %v for write lock: %w", g.Timeout, ErrLockTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for write lock: %w", ctx.Err())
	}
}
