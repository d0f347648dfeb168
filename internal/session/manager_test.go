package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/opsdesk/internal/config"
	"github.com/pitabwire/opsdesk/internal/datasource"
	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/model"
)

type screenMap map[string]model.ScreenDefinition

func (s screenMap) GetScreen(id string) (model.ScreenDefinition, bool) {
	def, ok := s[id]
	return def, ok
}

type builderFunc func(def model.ScreenDefinition) (datasource.Source, error)

func (f builderFunc) Build(def model.ScreenDefinition) (datasource.Source, error) { return f(def) }

type failingSource struct{}

func (failingSource) Fetch(context.Context, model.FetchRequest) (model.FetchResult, error) {
	return model.FetchResult{}, model.NewBackendUnavailableError()
}

func (failingSource) Paginated() bool { return false }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func walletsScreen() model.ScreenDefinition {
	return model.ScreenDefinition{ID: "wallets", Title: "Wallets", PageSize: 2}
}

func staticBuilder() builderFunc {
	return func(def model.ScreenDefinition) (datasource.Source, error) {
		return datasource.NewStaticSource([]model.Record{
			{ID: "W-1", SortKey: "2024-01-01"},
			{ID: "W-2", SortKey: "2024-01-02"},
			{ID: "W-3", SortKey: "2024-01-03"},
		}), nil
	}
}

func tenantCtx(tenant string) context.Context {
	return model.WithRequestContext(context.Background(), &model.RequestContext{TenantID: tenant, SubjectID: "op-1"})
}

func newTestManager(t *testing.T, cfg config.SessionConfig, opts ...Option) (*Manager, *testClock, *observability.Metrics) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	opts = append([]Option{WithClock(clock.Now), WithMetrics(metrics)}, opts...)
	m := NewManager(NewMemoryStore(), screenMap{"wallets": walletsScreen()}, staticBuilder(), cfg, opts...)
	return m, clock, metrics
}

func TestManager_openPerformsFirstFetch(t *testing.T) {
	m, _, metrics := newTestManager(t, config.SessionConfig{})

	s, err := m.Open(tenantCtx("t1"), "wallets")
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "t1", s.TenantID)
	assert.Equal(t, "op-1", s.SubjectID)
	st := s.Screen.State()
	assert.Equal(t, model.ScreenReady, st.Status)
	assert.Equal(t, 2, st.View.TotalPages)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsActive))
}

func TestManager_openUnknownScreen(t *testing.T) {
	m, _, _ := newTestManager(t, config.SessionConfig{})

	_, err := m.Open(tenantCtx("t1"), "withdrawals")
	var env *model.ErrorEnvelope
	require.ErrorAs(t, err, &env)
	assert.Equal(t, model.ErrNotFound, env.Code)
}

func TestManager_sessionLimit(t *testing.T) {
	m, _, _ := newTestManager(t, config.SessionConfig{MaxSessions: 1})

	_, err := m.Open(tenantCtx("t1"), "wallets")
	require.NoError(t, err)

	_, err = m.Open(tenantCtx("t1"), "wallets")
	var env *model.ErrorEnvelope
	require.ErrorAs(t, err, &env)
	assert.Equal(t, model.ErrSessionLimit, env.Code)
}

func TestManager_concurrentOpensRespectLimit(t *testing.T) {
	m, _, _ := newTestManager(t, config.SessionConfig{MaxSessions: 2})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Open(tenantCtx("t1"), "wallets")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	opened := 0
	for err := range errs {
		if err == nil {
			opened++
			continue
		}
		var env *model.ErrorEnvelope
		require.ErrorAs(t, err, &env)
		assert.Equal(t, model.ErrSessionLimit, env.Code)
	}
	assert.Equal(t, 2, opened)
	assert.Equal(t, 2, m.Len())
}

func TestManager_builderError(t *testing.T) {
	boom := errors.New("no pool")
	m := NewManager(NewMemoryStore(), screenMap{"wallets": walletsScreen()},
		builderFunc(func(model.ScreenDefinition) (datasource.Source, error) { return nil, boom }),
		config.SessionConfig{})

	_, err := m.Open(tenantCtx("t1"), "wallets")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Len())
}

func TestManager_failedFirstFetchKeepsSession(t *testing.T) {
	m := NewManager(NewMemoryStore(), screenMap{"wallets": walletsScreen()},
		builderFunc(func(model.ScreenDefinition) (datasource.Source, error) { return failingSource{}, nil }),
		config.SessionConfig{})

	s, err := m.Open(tenantCtx("t1"), "wallets")
	require.NoError(t, err)

	st := s.Screen.State()
	assert.Equal(t, model.ScreenError, st.Status)
	require.NotNil(t, st.Error)
	assert.Equal(t, model.ErrBackendUnavailable, st.Error.Code)
}

func TestManager_tenantScoping(t *testing.T) {
	m, _, _ := newTestManager(t, config.SessionConfig{})
	s, err := m.Open(tenantCtx("t1"), "wallets")
	require.NoError(t, err)

	got, err := m.Get(tenantCtx("t1"), s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get(tenantCtx("t2"), s.ID)
	var env *model.ErrorEnvelope
	require.ErrorAs(t, err, &env)
	assert.Equal(t, model.ErrSessionNotFound, env.Code)

	require.Error(t, m.Close(tenantCtx("t2"), s.ID))
	require.NoError(t, m.Close(tenantCtx("t1"), s.ID))
	_, err = m.Get(tenantCtx("t1"), s.ID)
	assert.Error(t, err)
}

func TestManager_sweepExpiresIdleSessions(t *testing.T) {
	m, clock, metrics := newTestManager(t, config.SessionConfig{IdleTimeout: 10 * time.Minute})
	ctx := tenantCtx("t1")

	idle, err := m.Open(ctx, "wallets")
	require.NoError(t, err)
	clock.Advance(6 * time.Minute)
	active, err := m.Open(ctx, "wallets")
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = m.Get(ctx, idle.ID)
	assert.Error(t, err)
	_, err = m.Get(ctx, active.ID)
	assert.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsExpiredTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsActive))
}

func TestManager_getKeepsSessionAlive(t *testing.T) {
	m, clock, _ := newTestManager(t, config.SessionConfig{IdleTimeout: 10 * time.Minute})
	ctx := tenantCtx("t1")
	s, err := m.Open(ctx, "wallets")
	require.NoError(t, err)

	clock.Advance(8 * time.Minute)
	_, err = m.Get(ctx, s.ID)
	require.NoError(t, err)
	clock.Advance(8 * time.Minute)

	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestManager_runStopsOnCancel(t *testing.T) {
	m, _, _ := newTestManager(t, config.SessionConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestManager_shutdownClosesAll(t *testing.T) {
	m, _, metrics := newTestManager(t, config.SessionConfig{})
	for i := 0; i < 3; i++ {
		_, err := m.Open(tenantCtx("t1"), "wallets")
		require.NoError(t, err)
	}

	m.Shutdown(context.Background())
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SessionsActive))
}
