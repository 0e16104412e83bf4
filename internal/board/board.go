// Package board coordinates the idea list the user sees. The remote
// backend is the source of truth: every confirmed create, update or
// delete is followed by a full re-fetch that replaces the view
// wholesale. The local cache is written only by backup import.
package board

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nugget/vibeplanner/internal/idea"
)

var (
	// ErrEmptyTitle is returned before any network call when an idea
	// has no title.
	ErrEmptyTitle = idea.ErrEmptyTitle

	// ErrNothingToChange is returned before any network call when an
	// update sets no field.
	ErrNothingToChange = errors.New("nothing to change")

	// ErrMutationInProgress is returned when another update or delete
	// of the same idea has not finished yet.
	ErrMutationInProgress = errors.New("another change to this idea is still in progress")

	// ErrStaleView is wrapped into the error returned when a mutation
	// succeeded remotely but the follow-up refresh failed. The visible
	// list no longer matches the backend until the next refresh.
	ErrStaleView = errors.New("idea list could not be refreshed")
)

// Remote is the slice of the planner API the coordinator needs.
// plannerapi.Client satisfies it.
type Remote interface {
	ListIdeas(ctx context.Context) ([]idea.Idea, error)
	CreateIdea(ctx context.Context, body idea.Body) (*idea.Idea, error)
	UpdateIdea(ctx context.Context, id int64, patch idea.Patch) (*idea.Idea, error)
	DeleteIdea(ctx context.Context, id int64) error
}

// Cache is the on-device idea store. ideastore.Store satisfies it.
type Cache interface {
	BulkUpsert(ctx context.Context, ideas []idea.Idea) ([]int64, error)
	All(ctx context.Context) ([]idea.Idea, error)
	Get(ctx context.Context, id int64) (*idea.Idea, error)
	Delete(ctx context.Context, id int64) error
}

// Coordinator owns the visible idea list.
type Coordinator struct {
	remote Remote
	cache  Cache
	logger *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.Mutex
	view     []idea.Idea
	started  uint64 // refreshes begun
	applied  uint64 // sequence number of the refresh the view came from
	inflight map[int64]struct{}
}

// New creates a coordinator. The gradient sequence for new ideas is
// seeded once per coordinator.
func New(remote Remote, cache Cache, logger *slog.Logger) *Coordinator {
	seed := uuid.New()
	return newWithSeed(remote, cache, logger,
		binary.BigEndian.Uint64(seed[:8]), binary.BigEndian.Uint64(seed[8:]))
}

func newWithSeed(remote Remote, cache Cache, logger *slog.Logger, s1, s2 uint64) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		remote:   remote,
		cache:    cache,
		logger:   logger.With("component", "board"),
		rng:      rand.New(rand.NewPCG(s1, s2)),
		view:     []idea.Idea{},
		inflight: make(map[int64]struct{}),
	}
}

// Ideas returns a copy of the visible list.
func (c *Coordinator) Ideas() []idea.Idea {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]idea.Idea, len(c.view))
	copy(out, c.view)
	return out
}

// Refresh re-fetches the full list and replaces the view with it. A
// fetch that completes after a later-started fetch has already been
// applied is discarded. On error the view is left unchanged.
func (c *Coordinator) Refresh(ctx context.Context) ([]idea.Idea, error) {
	c.mu.Lock()
	c.started++
	seq := c.started
	c.mu.Unlock()

	ideas, err := c.remote.ListIdeas(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh ideas: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refresh ideas: %w", err)
	}

	c.mu.Lock()
	if seq > c.applied {
		c.view = ideas
		c.applied = seq
		c.logger.Debug("view replaced", "ideas", len(ideas), "refresh", seq)
	} else {
		c.logger.Debug("stale refresh discarded", "refresh", seq, "applied", c.applied)
	}
	c.mu.Unlock()

	return c.Ideas(), nil
}

// Create persists a new idea. Missing status, cover type and gradient
// are filled in before the call. The voice memo is not sent; the
// backend does not store audio. The server's copy is returned.
func (c *Coordinator) Create(ctx context.Context, draft idea.Idea) (*idea.Idea, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	if !draft.IsNew() {
		return nil, fmt.Errorf("create idea: already has id %d", draft.ID)
	}

	if draft.Status == "" {
		draft.Status = idea.StatusTodo
	}
	if draft.CoverType == "" {
		draft.CoverType = idea.CoverGradient
	}
	draft.Metadata = draft.Metadata.WithGradient(c.pickGradient())
	if draft.AudioAsset != nil {
		c.logger.Debug("voice memo kept local", "bytes", draft.AudioAsset.Len())
	}

	created, err := c.remote.CreateIdea(ctx, draft.Body())
	if err != nil {
		return nil, fmt.Errorf("create idea: %w", err)
	}
	c.logger.Info("idea created", "id", created.ID, "title", created.Title)

	return created, c.refreshAfter(ctx, "create")
}

// Update applies patch to the idea with the given id. A gradient the
// card already has is never replaced.
func (c *Coordinator) Update(ctx context.Context, id int64, patch idea.Patch) (*idea.Idea, error) {
	if patch.Empty() {
		return nil, ErrNothingToChange
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, ErrEmptyTitle
	}
	done, err := c.begin(id)
	if err != nil {
		return nil, err
	}
	defer done()

	if patch.Metadata != nil {
		current, ok := c.find(id)
		if !ok {
			// Not on screen yet: fetch the list so the card's gradient
			// is known before the metadata is replaced.
			if _, err := c.Refresh(ctx); err != nil {
				return nil, fmt.Errorf("update idea %d: %w", id, err)
			}
			current, ok = c.find(id)
		}
		if ok {
			if g := current.Metadata.Gradient(); g != "" {
				patch.Metadata = patch.Metadata.Clone()
				patch.Metadata[gradientKey] = g
			}
		}
	}

	updated, err := c.remote.UpdateIdea(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update idea %d: %w", id, err)
	}
	c.logger.Info("idea updated", "id", id)

	return updated, c.refreshAfter(ctx, "update")
}

// Delete removes the idea remotely and evicts any cached copy so a
// later backup does not resurrect it.
func (c *Coordinator) Delete(ctx context.Context, id int64) error {
	done, err := c.begin(id)
	if err != nil {
		return err
	}
	defer done()

	if err := c.remote.DeleteIdea(ctx, id); err != nil {
		return fmt.Errorf("delete idea %d: %w", id, err)
	}
	c.logger.Info("idea deleted", "id", id)

	if c.cache != nil {
		if err := c.cache.Delete(ctx, id); err != nil {
			c.logger.Warn("cached copy not evicted", "id", id, "error", err)
		}
	}

	return c.refreshAfter(ctx, "delete")
}

// Offline lists the locally cached ideas without touching the network.
func (c *Coordinator) Offline(ctx context.Context) ([]idea.Idea, error) {
	ideas, err := c.cache.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read local cache: %w", err)
	}
	return ideas, nil
}

// Cached returns one locally cached idea without touching the network.
// A missing id is reported with the cache's not-found error.
func (c *Coordinator) Cached(ctx context.Context, id int64) (*idea.Idea, error) {
	i, err := c.cache.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read local cache: %w", err)
	}
	return i, nil
}

const gradientKey = "gradient"

func (c *Coordinator) refreshAfter(ctx context.Context, op string) error {
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after mutation failed", "op", op, "error", err)
		return fmt.Errorf("%s succeeded: %w: %w", op, ErrStaleView, err)
	}
	return nil
}

// begin marks id as being mutated. The returned func clears the mark.
func (c *Coordinator) begin(id int64) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[id]; busy {
		return nil, fmt.Errorf("idea %d: %w", id, ErrMutationInProgress)
	}
	c.inflight[id] = struct{}{}
	return func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
	}, nil
}

func (c *Coordinator) find(id int64) (idea.Idea, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, i := range c.view {
		if i.ID == id {
			return i, true
		}
	}
	return idea.Idea{}, false
}

func (c *Coordinator) pickGradient() string {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return idea.Gradients[c.rng.IntN(len(idea.Gradients))]
}
