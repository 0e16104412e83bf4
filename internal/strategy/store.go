package strategy

import (
	"context"
	"fmt"
	"log/slog"
)

// Remote is the slice of the planner API the store needs.
// plannerapi.Client satisfies it.
type Remote interface {
	GetStrategy(ctx context.Context) (*Profile, error)
	SaveStrategy(ctx context.Context, p Profile) error
}

// Store loads and saves the strategy singleton.
type Store struct {
	remote Remote
	logger *slog.Logger
}

// NewStore creates a store backed by remote.
func NewStore(remote Remote, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{remote: remote, logger: logger.With("component", "strategy")}
}

// Load fetches the profile. When the server has no usable data the
// built-in default is returned. When the fetch fails the default is
// returned together with the error so callers can still render
// something.
//
// A profile stored in the legacy text-encoded form is saved back once
// in the structured form. A failed migration is logged and does not
// fail the load.
func (s *Store) Load(ctx context.Context) (Profile, error) {
	p, err := s.remote.GetStrategy(ctx)
	if err != nil {
		return Default(), fmt.Errorf("load strategy: %w", err)
	}
	if p == nil || !p.Usable() {
		s.logger.Debug("server profile empty, using default")
		return Default(), nil
	}

	p.fillFrom(Default())
	if p.NeedsMigration() {
		p.legacy = false
		if err := s.remote.SaveStrategy(ctx, *p); err != nil {
			s.logger.Warn("legacy strategy migration failed", "error", err)
		} else {
			s.logger.Info("migrated legacy strategy fields")
		}
	}
	return *p, nil
}

// Save replaces the stored profile with p.
func (s *Store) Save(ctx context.Context, p Profile) error {
	if err := s.remote.SaveStrategy(ctx, p); err != nil {
		return fmt.Errorf("save strategy: %w", err)
	}
	s.logger.Info("strategy saved", "completeness", Completeness(p))
	return nil
}
