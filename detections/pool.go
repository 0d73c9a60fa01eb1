package detections

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const DefaultPoolSize = 2

var ErrPoolClosed = errors.New("session pool is closed")

// SessionPool lends model sessions to one caller at a time. It is what makes
// a single detector safe to share across concurrent requests.
type SessionPool struct {
	sessions chan Session
	size     int
	mu       sync.Mutex
	closed   bool
	metrics  poolMetrics
}

type poolMetrics struct {
	mu            sync.RWMutex
	inUse         int
	totalAcquired int64
	totalReleased int64
	waitTime      time.Duration
}

// PoolStats is a point-in-time copy of the pool counters.
type PoolStats struct {
	Size          int
	InUse         int
	TotalAcquired int64
	TotalReleased int64
	WaitTime      time.Duration
}

func NewSessionPool(size int, newSession func() (Session, error)) (*SessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &SessionPool{
		sessions: make(chan Session, size),
		size:     size,
	}

	for i := 0; i < size; i++ {
		session, err := newSession()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	return pool, nil
}

// Acquire blocks until a session is free or ctx is done.
func (p *SessionPool) Acquire(ctx context.Context) (Session, error) {
	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *SessionPool) Release(session Session) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		session.Destroy()
		return
	}
	p.sessions <- session
}

// Close destroys idle sessions; sessions still lent out are destroyed when
// they are released.
func (p *SessionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
	}
}

func (p *SessionPool) Stats() PoolStats {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolStats{
		Size:          p.size,
		InUse:         p.metrics.inUse,
		TotalAcquired: p.metrics.totalAcquired,
		TotalReleased: p.metrics.totalReleased,
		WaitTime:      p.metrics.waitTime,
	}
}
