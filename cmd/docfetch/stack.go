package main

import (
	"context"

	"github.com/jxwalker/docfetch/internal/apiclient"
	"github.com/jxwalker/docfetch/internal/config"
	"github.com/jxwalker/docfetch/internal/coordinator"
	"github.com/jxwalker/docfetch/internal/engine"
	friendlyerrors "github.com/jxwalker/docfetch/internal/errors"
	"github.com/jxwalker/docfetch/internal/lockfile"
	"github.com/jxwalker/docfetch/internal/logging"
	"github.com/jxwalker/docfetch/internal/metrics"
	"github.com/jxwalker/docfetch/internal/projection"
)

// stack is the set of components a command talks to.
type stack struct {
	cfg     *config.Config
	log     *logging.Logger
	api     *apiclient.Client
	eng     *engine.Local
	metrics *metrics.Manager
	lock    *lockfile.LockFile
}

// openStack builds the backend client and local engine. With exclusive set it
// first takes the data root lock.
func openStack(cfg *config.Config, log *logging.Logger, exclusive bool) (*stack, error) {
	s := &stack{cfg: cfg, log: log, metrics: metrics.New(cfg)}
	if exclusive {
		lk, err := lockfile.Acquire(cfg.Engine.DataRoot)
		if err != nil {
			return nil, friendlyerrors.NewFriendlyError(
				"Cannot lock the data root "+cfg.Engine.DataRoot,
				"Close other docfetch sync or tui sessions using this data root and try again",
			).WithDetails(err)
		}
		s.lock = lk
	}
	api, err := apiclient.New(cfg.Backend.BaseURL, cfg.Backend.UserID, cfg.Backend.Password,
		apiclient.WithLogger(log),
		apiclient.WithTimeout(cfg.Timeout()),
		apiclient.WithUserAgent(cfg.Backend.UserAgent),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.api = api
	eng, err := engine.OpenLocal(cfg.Engine.ServerURL, cfg.Engine.DataRoot, engine.WithLogger(log))
	if err != nil {
		s.Close()
		return nil, friendlyerrors.DatabaseError(err)
	}
	s.eng = eng
	return s, nil
}

func (s *stack) coordinator(ctx context.Context, exec coordinator.Executor) *coordinator.Coordinator {
	return coordinator.New(exec, coordinator.FromClient(s.api), s.eng, projection.New(),
		coordinator.WithLogger(s.log),
		coordinator.WithMetrics(s.metrics),
		coordinator.WithMinRefreshDelay(s.cfg.MinRefreshDelay()),
		coordinator.WithContext(ctx),
	)
}

// Close stops the engine, flushes metrics and releases the lock.
func (s *stack) Close() {
	if s.eng != nil {
		if err := s.eng.Close(); err != nil {
			s.log.Warnf("closing engine: %v", err)
		}
	}
	if err := s.metrics.Write(); err != nil {
		s.log.Warnf("writing metrics: %v", err)
	}
	if err := s.lock.Release(); err != nil {
		s.log.Warnf("releasing lock: %v", err)
	}
}
