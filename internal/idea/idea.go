// Package idea defines the content-planning card shared by the remote
// gateway, the local cache and the board coordinator.
package idea

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nugget/vibeplanner/internal/asset"
)

// ErrEmptyTitle is returned when an idea without a title is about to be
// persisted.
var ErrEmptyTitle = errors.New("idea title is required")

// Status is the workflow state of an idea. Known values have constants;
// anything else the server sends is kept verbatim so it survives a
// round trip.
type Status string

// Known statuses.
const (
	StatusTodo       Status = "todo"
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusPublished  Status = "published"
)

// Known reports whether s is one of the statuses this client understands.
func (s Status) Known() bool {
	switch s {
	case StatusTodo, StatusDraft, StatusInProgress, StatusDone, StatusPublished:
		return true
	}
	return false
}

// OrDefault returns s, or StatusDraft when s is empty.
func (s Status) OrDefault() Status {
	if s == "" {
		return StatusDraft
	}
	return s
}

// CoverType tags how a card's cover is produced.
type CoverType string

// CoverGradient is the only cover type the planner produces today.
const CoverGradient CoverType = "gradient"

// Known reports whether c is a cover type this client can render.
func (c CoverType) Known() bool { return c == CoverGradient }

// Gradients are the card backgrounds a new idea can be given.
var Gradients = []string{
	"linear-gradient(135deg, #1e1e24 0%, #2a2a35 100%)",
	"linear-gradient(135deg, #3b82f6 0%, #1e40af 100%)",
	"linear-gradient(135deg, #10b981 0%, #047857 100%)",
	"linear-gradient(135deg, #8b5cf6 0%, #5b21b6 100%)",
	"linear-gradient(135deg, #f59e0b 0%, #b45309 100%)",
}

// Metadata is the free-form metadata bag of an idea. Every key is
// preserved through the gateway, the cache and backup files.
type Metadata map[string]any

const gradientKey = "gradient"

// Gradient returns the card's CSS gradient, or "" when unset.
func (m Metadata) Gradient() string {
	g, _ := m[gradientKey].(string)
	return g
}

// Clone returns a shallow copy, safe to modify at the top level.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithGradient returns a copy of m with the gradient set, unless m
// already carries one. The first gradient assigned to a card wins.
func (m Metadata) WithGradient(g string) Metadata {
	out := m.Clone()
	if out == nil {
		out = Metadata{}
	}
	if out.Gradient() == "" {
		out[gradientKey] = g
	}
	return out
}

// Idea is a single planning card.
type Idea struct {
	// ID is assigned by the remote store. Zero means not yet persisted.
	ID        int64      `json:"id,omitempty"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Status    Status     `json:"status,omitempty"`
	CoverType CoverType  `json:"cover_type,omitempty"`
	Metadata  Metadata   `json:"metadata,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// AudioAsset is the optional voice memo. It never goes to the
	// remote store; backups carry it as a data URI.
	AudioAsset *asset.Asset `json:"-"`
}

// UnmarshalJSON decodes an idea and defaults a missing status to draft.
func (i *Idea) UnmarshalJSON(data []byte) error {
	type plain Idea
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*i = Idea(p)
	i.Status = i.Status.OrDefault()
	return nil
}

// IsNew reports whether the idea has never been persisted remotely.
func (i *Idea) IsNew() bool { return i.ID == 0 }

// Validate checks what must hold before any persistence call.
func (i *Idea) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return ErrEmptyTitle
	}
	return nil
}

// Body is the create/update payload accepted by the remote store.
type Body struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Status    Status    `json:"status"`
	CoverType CoverType `json:"cover_type"`
	Metadata  Metadata  `json:"metadata"`
}

// Body returns the persistence payload for i.
func (i *Idea) Body() Body {
	return Body{
		Title:     i.Title,
		Content:   i.Content,
		Status:    i.Status.OrDefault(),
		CoverType: i.CoverType,
		Metadata:  i.Metadata,
	}
}

// Patch is a partial update. Nil fields are left untouched by the server.
type Patch struct {
	Title     *string    `json:"title,omitempty"`
	Content   *string    `json:"content,omitempty"`
	Status    *Status    `json:"status,omitempty"`
	CoverType *CoverType `json:"cover_type,omitempty"`
	Metadata  Metadata   `json:"metadata,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Status == nil && p.CoverType == nil && p.Metadata == nil
}
