package prefs

import (
	"context"
	"fmt"
	"strconv"
)

const (
	chatNamespace = "chat"
	keyContext    = "context"
	keyUseContext = "use_context"
)

// DefaultContext seeds the chat context before the user saves their own.
const DefaultContext = `# WHAT I DO:
- Multi-agent AI systems (RAG)
- Voice bots for business
- Computer vision (YOLOv8)
- Process automation

# MY GOAL:
Attract top companies and students through YouTube.`

// UserPreferences is loaded once at startup and handed by pointer to
// the components that read it. Changes are persisted only by Save.
type UserPreferences struct {
	// Context is prepended to chat questions when UseContext is set.
	Context    string
	UseContext bool
}

// Defaults returns the preferences of a fresh install: DefaultContext,
// switched off.
func Defaults() *UserPreferences {
	return &UserPreferences{Context: DefaultContext}
}

// Load reads the preferences from s. Missing values take their
// defaults.
func Load(ctx context.Context, s *Store) (*UserPreferences, error) {
	values, err := s.List(ctx, chatNamespace)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	p := Defaults()
	if v, ok := values[keyContext]; ok {
		p.Context = v
	}
	if v, ok := values[keyUseContext]; ok {
		p.UseContext, _ = strconv.ParseBool(v)
	}
	return p, nil
}

// Save writes p to s.
func (p *UserPreferences) Save(ctx context.Context, s *Store) error {
	err := s.Set(ctx, chatNamespace, map[string]string{
		keyContext:    p.Context,
		keyUseContext: strconv.FormatBool(p.UseContext),
	})
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// Reset forgets the saved preferences and returns the defaults.
func Reset(ctx context.Context, s *Store) (*UserPreferences, error) {
	if err := s.Clear(ctx, chatNamespace); err != nil {
		return nil, fmt.Errorf("reset preferences: %w", err)
	}
	return Defaults(), nil
}

// ActiveContext returns the context text to send, or "" when the
// context is switched off or blank.
func (p *UserPreferences) ActiveContext() string {
	if p == nil || !p.UseContext {
		return ""
	}
	return p.Context
}
