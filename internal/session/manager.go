package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/config"
	"github.com/pitabwire/opsdesk/internal/datasource"
	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/internal/screen"
	"github.com/pitabwire/opsdesk/model"
)

// DefaultIdleTimeout is used when the configuration leaves it unset.
const DefaultIdleTimeout = 30 * time.Minute

// ScreenLookup resolves screen definitions by ID.
type ScreenLookup interface {
	GetScreen(screenID string) (model.ScreenDefinition, bool)
}

// SourceBuilder creates the data source a new screen fetches from.
type SourceBuilder interface {
	Build(def model.ScreenDefinition) (datasource.Source, error)
}

// Manager opens, resolves, and expires screen sessions.
type Manager struct {
	store   Store
	screens ScreenLookup
	builder SourceBuilder
	cfg     config.SessionConfig
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records session gauges and passes metrics to every screen.
func WithMetrics(m *observability.Metrics) Option {
	return func(mg *Manager) { mg.metrics = m }
}

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(mg *Manager) { mg.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(mg *Manager) { mg.now = now }
}

// NewManager creates a session manager.
func NewManager(store Store, screens ScreenLookup, builder SourceBuilder, cfg config.SessionConfig, opts ...Option) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	m := &Manager{
		store:   store,
		screens: screens,
		builder: builder,
		cfg:     cfg,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a session on the named screen and performs the first fetch.
// A failed first fetch still yields a session whose state carries the error,
// so the caller can offer a retry.
func (m *Manager) Open(ctx context.Context, screenID string) (*Session, error) {
	def, ok := m.screens.GetScreen(screenID)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("screen %q not found", screenID))
	}
	if m.cfg.MaxSessions > 0 && m.store.Len() >= m.cfg.MaxSessions {
		return nil, model.NewSessionLimitError(m.cfg.MaxSessions)
	}

	src, err := m.builder.Build(def)
	if err != nil {
		return nil, fmt.Errorf("building data source for %s: %w", screenID, err)
	}

	tenantID, subjectID := identity(ctx)
	now := m.now()
	s := &Session{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		SubjectID:  subjectID,
		ScreenID:   screenID,
		CreatedAt:  now,
		LastAccess: now,
	}
	s.Screen = screen.New(def, src,
		screen.WithMetrics(m.metrics),
		screen.WithLogger(m.logger.With(observability.ScreenFields(screenID, s.ID)...)),
	)

	if err := m.store.Create(ctx, s, m.cfg.MaxSessions); err != nil {
		s.Screen.Close()
		return nil, err
	}
	m.metrics.SetSessionsActive(m.store.Len())

	log := observability.RequestLogger(ctx, m.logger)
	log.Info("session opened", observability.ScreenFields(screenID, s.ID)...)

	if err := s.Screen.Refresh(ctx); err != nil {
		log.Warn("first fetch failed",
			append(observability.ScreenFields(screenID, s.ID), zap.Error(err))...)
	}
	return s, nil
}

// Get returns the caller's session and marks it active.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	tenantID, _ := identity(ctx)
	return m.store.Get(ctx, tenantID, sessionID, m.now())
}

// Close removes the caller's session and cancels any fetch in flight.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	tenantID, _ := identity(ctx)
	s, err := m.store.Delete(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}
	s.Screen.Close()
	m.metrics.SetSessionsActive(m.store.Len())

	observability.RequestLogger(ctx, m.logger).Info("session closed", observability.ScreenFields(s.ScreenID, s.ID)...)
	return nil
}

// Sweep closes sessions idle longer than the configured timeout and returns
// how many were closed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	expired, err := m.store.TakeExpired(ctx, m.now().Add(-m.cfg.IdleTimeout))
	if err != nil {
		return 0, fmt.Errorf("collecting expired sessions: %w", err)
	}
	for _, s := range expired {
		s.Screen.Close()
		m.logger.Info("session expired", observability.ScreenFields(s.ScreenID, s.ID)...)
	}
	if len(expired) > 0 {
		m.metrics.RecordSessionsExpired(len(expired))
		m.metrics.SetSessionsActive(m.store.Len())
	}
	return len(expired), nil
}

// Run sweeps idle sessions every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.logger.Error("session sweep failed", zap.Error(err))
			}
		}
	}
}

// Shutdown closes every open session.
func (m *Manager) Shutdown(ctx context.Context) {
	all := m.store.TakeAll(ctx)
	for _, s := range all {
		s.Screen.Close()
	}
	m.metrics.SetSessionsActive(0)
	if len(all) > 0 {
		m.logger.Info("sessions closed on shutdown", zap.Int("count", len(all)))
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int { return m.store.Len() }

func identity(ctx context.Context) (tenantID, subjectID string) {
	if rc := model.RequestContextFrom(ctx); rc != nil {
		return rc.TenantID, rc.SubjectID
	}
	return "", ""
}

func errSessionNotFound(sessionID string) error {
	return model.NewSessionNotFoundError(sessionID)
}

func errSessionExists(sessionID string) error {
	return model.NewConflictError(fmt.Sprintf("session %q already exists", sessionID))
}
