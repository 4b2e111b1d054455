// Package service owns the per-run-key sessions and wires triggers to the
// lifecycle controllers, the journal, the policy gate and the live feed.
package service

import (
	"log/slog"
	"sync"

	"github.com/xiaot623/agentflow/internal/catalog"
	"github.com/xiaot623/agentflow/internal/config"
	"github.com/xiaot623/agentflow/internal/lifecycle"
	"github.com/xiaot623/agentflow/internal/metrics"
	"github.com/xiaot623/agentflow/internal/policy"
	store "github.com/xiaot623/agentflow/internal/repository"
)

// Broadcaster pushes messages to the clients bound to a session.
type Broadcaster interface {
	BroadcastJSON(sessionID string, v interface{}) error
	HasActiveConnections(sessionID string) bool
}

// Options wires the service dependencies. Store, Policy, Hub and Metrics may
// be nil.
type Options struct {
	Catalog *catalog.Catalog
	Factory lifecycle.Factory
	Store   store.Store
	Policy  *policy.Engine
	Hub     Broadcaster
	Metrics *metrics.Metrics
	Config  *config.Config
	Logger  *slog.Logger
}

type Service struct {
	catalog      *catalog.Catalog
	factory      lifecycle.Factory
	store        store.Store
	policyEngine *policy.Engine
	hub          Broadcaster
	metrics      *metrics.Metrics
	config       *config.Config
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	started  sync.Map // run id -> time.Time
}

func New(opts Options) *Service {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Config == nil {
		opts.Config = &config.Config{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Factory == nil {
		opts.Factory = lifecycle.NewFactory(lifecycle.FactoryConfig{
			TimeScale:  opts.Config.TimeScale,
			BackendURL: opts.Config.StreamBackendURL,
			Marker:     opts.Config.StreamMarker,
			Tolerance:  opts.Config.ProtocolTolerance,
			Logger:     opts.Logger,
		})
	}
	return &Service{
		catalog:      opts.Catalog,
		factory:      opts.Factory,
		store:        opts.Store,
		policyEngine: opts.Policy,
		hub:          opts.Hub,
		metrics:      opts.Metrics,
		config:       opts.Config,
		logger:       opts.Logger,
		sessions:     make(map[string]*Session),
	}
}

// Close unmounts every session. No transition happens after it returns.
func (s *Service) Close() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.unsubscribe()
		sess.ctrl.Unmount()
	}
}
