package notebook

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hue-gateway/internal/livy"
	"hue-gateway/internal/metrics"
)

type fakeCloser struct {
	mu     sync.Mutex
	closed []int
	err    map[int]error
}

func (f *fakeCloser) Close(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return f.err[id]
}

func (f *fakeCloser) ids() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int(nil), f.closed...)
	sort.Ints(out)
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestSessions(closer SessionCloser, m *metrics.Gateway) (*Sessions, *clock) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewSessions(closer, time.Hour, m, nil)
	s.now = c.Now
	return s, c
}

func TestSessions_ReapOnce(t *testing.T) {
	closer := &fakeCloser{}
	m := metrics.New()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	s, clk := newTestSessions(closer, m)

	s.Track("alice", 1, "spark")
	s.Track("bob", 2, "pyspark")
	clk.Advance(50 * time.Minute)
	s.Touch(2)
	s.Track("carol", 3, "spark")
	clk.Advance(20 * time.Minute)

	assert.Equal(t, 1, s.reapOnce(context.Background()))
	assert.Equal(t, []int{1}, closer.ids())
	assert.Equal(t, 2, s.Len())
	expected := `
# HELP hue_gateway_livy_sessions Number of Spark sessions tracked by the gateway
# TYPE hue_gateway_livy_sessions gauge
hue_gateway_livy_sessions 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "hue_gateway_livy_sessions"))

	t.Run("list_by_user", func(t *testing.T) {
		bob := s.List("bob")
		require.Len(t, bob, 1)
		assert.Equal(t, 2, bob[0].ID)
		assert.Len(t, s.List(""), 2)
	})
}

func TestSessions_ReapKeepsGoingOnError(t *testing.T) {
	closer := &fakeCloser{err: map[int]error{1: errors.New("connection refused")}}
	s, clk := newTestSessions(closer, nil)
	s.Track("alice", 1, "spark")
	s.Track("alice", 2, "spark")
	clk.Advance(2 * time.Hour)

	assert.Equal(t, 2, s.reapOnce(context.Background()))
	assert.Equal(t, []int{1, 2}, closer.ids())
	assert.Equal(t, 0, s.Len())
}

func TestSessions_CloseAll(t *testing.T) {
	closer := &fakeCloser{err: map[int]error{
		2: &livy.Error{StatusCode: http.StatusNotFound, Message: "gone"},
		3: errors.New("boom"),
	}}
	s, _ := newTestSessions(closer, nil)
	s.Track("alice", 1, "spark")
	s.Track("alice", 2, "spark")
	s.Track("alice", 3, "spark")

	err := s.CloseAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.NotContains(t, err.Error(), "gone")
	assert.Equal(t, []int{1, 2, 3}, closer.ids())
	assert.Equal(t, 0, s.Len())
}

func TestSessions_ReapIdleStopsWithContext(t *testing.T) {
	closer := &fakeCloser{}
	s := NewSessions(closer, time.Nanosecond, nil, nil)
	s.Track("alice", 7, "spark")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.ReapIdle(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Len() == 0 }, 5*time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ReapIdle did not return after cancel")
	}
	assert.Equal(t, []int{7}, closer.ids())
}

func TestSessions_NilIsNoop(t *testing.T) {
	var s *Sessions
	s.Track("alice", 1, "spark")
	s.Touch(1)
	s.Forget(1)
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.List(""))
	require.NoError(t, s.CloseAll(context.Background()))
	s.ReapIdle(context.Background(), time.Millisecond)
}
