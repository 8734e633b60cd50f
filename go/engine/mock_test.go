package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// mockBackend is a DatabaseBackend test double whose query outcome and
// latency are fully controlled, so tests can assert on call counts without
// depending on real network or local-index behaviour.
type mockBackend struct {
	name        string
	local       bool
	requiresDOI bool
	delay       time.Duration
	calls       atomic.Int32

	result    DbQueryResult
	err       error
	resultFor func(title string) (DbQueryResult, error)
}

func (m *mockBackend) Name() string      { return m.name }
func (m *mockBackend) IsLocal() bool     { return m.local }
func (m *mockBackend) RequiresDOI() bool { return m.requiresDOI }

func (m *mockBackend) Query(ctx context.Context, title, doi string) (DbQueryResult, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return DbQueryResult{}, ctx.Err()
		}
	}
	if m.resultFor != nil {
		return m.resultFor(title)
	}
	return m.result, m.err
}

func (m *mockBackend) callCount() int32 { return m.calls.Load() }
