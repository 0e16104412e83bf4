package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/vibeplanner/internal/chat"
	"github.com/nugget/vibeplanner/internal/idea"
	"github.com/nugget/vibeplanner/internal/plannerapi"
	"github.com/nugget/vibeplanner/internal/prefs"
	"github.com/nugget/vibeplanner/internal/strategy"
)

// runChat handles "vibeplanner chat [-strategy] <question>". Tokens are
// printed as they arrive. With -strategy the context block is built from
// the strategy profile for this turn instead of the saved context.
func runChat(ctx context.Context, a *app, args []string) error {
	useStrategy := false
	if len(args) > 0 && (args[0] == "-strategy" || args[0] == "--strategy") {
		useStrategy = true
		args = args[1:]
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: vibeplanner chat [-strategy] <question>")
	}

	p, err := prefs.Load(ctx, a.prefs)
	if err != nil {
		return err
	}
	if useStrategy {
		profile, err := a.strategy.Load(ctx)
		if err != nil {
			a.warn(err)
		}
		// Not saved: the strategy context applies to this turn only.
		p = &prefs.UserPreferences{Context: profile.ContextText(), UseContext: true}
	}

	printed := 0
	onUpdate := func(m chat.Message) {
		if a.json() {
			return
		}
		fmt.Fprint(a.stdout, m.Content[printed:])
		printed = len(m.Content)
	}

	c := a.newChat(p)
	turn, err := c.Send(ctx, strings.Join(args, " "), onUpdate)
	if a.json() && turn != nil {
		if jerr := writeJSON(a.stdout, chatResult(c, turn)); jerr != nil {
			return jerr
		}
		return err
	}

	if printed > 0 {
		fmt.Fprintln(a.stdout)
	}
	if turn != nil && turn.State == chat.StateFailed {
		msgs := c.Messages()
		fmt.Fprintln(a.stdout, msgs[len(msgs)-1].Content)
	}
	if turn != nil && turn.ServerError != "" {
		fmt.Fprintln(a.stderr, "assistant error:", turn.ServerError)
	}
	if turn != nil && turn.Stats != nil {
		fmt.Fprintf(a.stderr, "(%d sources, avg similarity %.2f)\n", turn.Stats.SourcesCount, turn.Stats.AvgSimilarity)
	}
	return err
}

type chatOutput struct {
	ThreadID    string         `json:"thread_id"`
	State       string         `json:"state"`
	Reply       string         `json:"reply"`
	Tokens      int            `json:"tokens"`
	Stats       *chat.Stats    `json:"stats,omitempty"`
	ServerError string         `json:"server_error,omitempty"`
	Messages    []chat.Message `json:"messages"`
}

func chatResult(c *chat.Client, t *chat.Turn) chatOutput {
	return chatOutput{
		ThreadID:    c.ThreadID(),
		State:       t.State.String(),
		Reply:       t.Reply,
		Tokens:      t.Tokens,
		Stats:       t.Stats,
		ServerError: t.ServerError,
		Messages:    c.Messages(),
	}
}

// runContext handles "vibeplanner context [show|on|off|set <text>|reset]".
func runContext(ctx context.Context, a *app, args []string) error {
	p, err := prefs.Load(ctx, a.prefs)
	if err != nil {
		return err
	}

	action := "show"
	if len(args) > 0 {
		action = args[0]
	}
	switch action {
	case "show":
	case "on":
		p.UseContext = true
	case "off":
		p.UseContext = false
	case "set":
		text := strings.TrimSpace(strings.Join(args[1:], " "))
		if text == "" {
			return fmt.Errorf("usage: vibeplanner context set <text>")
		}
		p.Context = text
	case "reset":
		if p, err = prefs.Reset(ctx, a.prefs); err != nil {
			return err
		}
	default:
		return fmt.Errorf("usage: vibeplanner context [show|on|off|set <text>|reset]")
	}
	if action != "show" && action != "reset" {
		if err := p.Save(ctx, a.prefs); err != nil {
			return err
		}
	}

	if a.json() {
		return writeJSON(a.stdout, map[string]any{"use_context": p.UseContext, "context": p.Context})
	}
	state := "off"
	if p.UseContext {
		state = "on"
	}
	fmt.Fprintf(a.stdout, "Context is %s.\n\n%s\n", state, p.Context)
	return nil
}

// runStrategy handles "vibeplanner strategy [score]" and
// "vibeplanner strategy save <file.json>".
func runStrategy(ctx context.Context, a *app, args []string) error {
	if len(args) > 0 && args[0] == "save" {
		if len(args) != 2 {
			return fmt.Errorf("usage: vibeplanner strategy save <file.json>")
		}
		return saveStrategy(ctx, a, args[1])
	}
	if len(args) > 1 || (len(args) == 1 && args[0] != "score") {
		return fmt.Errorf("usage: vibeplanner strategy [score] | strategy save <file.json>")
	}

	profile, err := a.strategy.Load(ctx)
	if err != nil {
		// The built-in profile is still worth showing.
		a.warn(err)
	}
	score := strategy.Completeness(profile)

	if len(args) == 1 {
		if a.json() {
			return writeJSON(a.stdout, map[string]int{"completeness": score})
		}
		fmt.Fprintf(a.stdout, "Strategy completeness: %d%%\n", score)
		return nil
	}

	if a.json() {
		return writeJSON(a.stdout, profile)
	}
	fmt.Fprintf(a.stdout, "Strategy completeness: %d%%\n", score)
	for _, f := range profile.Fields() {
		fmt.Fprintf(a.stdout, "\n## %s\n%s\n", f.Name, f.Value)
	}
	if mix := profile.ContentArchitecture; mix != nil {
		fmt.Fprintf(a.stdout, "\n## content mix\nviral %d%%, expert %d%%, case %d%%, warmup %d%%\n",
			mix.Viral, mix.Expert, mix.Case, mix.Warmup)
		if !mix.Balanced() {
			fmt.Fprintf(a.stdout, "(adds up to %d%%, not 100%%)\n", mix.Sum())
		}
	}
	return nil
}

func saveStrategy(ctx context.Context, a *app, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	var profile strategy.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("parse profile %s: %w", path, err)
	}
	if mix := profile.ContentArchitecture; mix != nil && !mix.Balanced() {
		fmt.Fprintf(a.stderr, "warning: content mix adds up to %d%%, not 100%%\n", mix.Sum())
	}

	if err := a.strategy.Save(ctx, profile); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Strategy saved (completeness %d%%).\n", strategy.Completeness(profile))
	return nil
}

// runEnhance handles "vibeplanner enhance <title> [content]". Focus and
// persona come from the enhance section of the config.
func runEnhance(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: vibeplanner enhance <title> [content]")
	}
	req := idea.EnhanceRequest{
		Title:   args[0],
		Content: strings.Join(args[1:], " "),
		Focus:   a.cfg.Enhance.Focus,
		Persona: a.cfg.Enhance.Persona,
	}

	e, err := a.api.EnhanceIdea(ctx, req)
	if err != nil {
		return err
	}
	if a.json() {
		return writeJSON(a.stdout, e)
	}
	fmt.Fprintln(a.stdout, e.Format())
	return nil
}

// runTrends handles "vibeplanner trends [topic]".
func runTrends(ctx context.Context, a *app, args []string) error {
	topics, err := a.api.TrendIdeas(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if a.json() {
		return writeJSON(a.stdout, topics)
	}
	if len(topics) == 0 {
		fmt.Fprintln(a.stdout, "No trends found.")
		return nil
	}
	for n, t := range topics {
		fmt.Fprintf(a.stdout, "%d. %s\n   %s\n", n+1, t.Title, t.Description)
	}
	return nil
}

// runGraph handles "vibeplanner graph [limit]".
func runGraph(ctx context.Context, a *app, args []string) error {
	limit := a.cfg.Graph.Limit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}

	g, err := a.api.KnowledgeGraph(ctx, limit)
	if err != nil {
		return err
	}
	if a.json() {
		return writeJSON(a.stdout, g)
	}
	fmt.Fprintf(a.stdout, "%d chunks, %d links\n", len(g.Nodes), len(g.Links))
	for _, n := range g.Nodes {
		fmt.Fprintf(a.stdout, "  %s  %s\n", n.ID, n.Name)
	}
	return nil
}

// runStatus handles "vibeplanner status". Backend health and the local
// state are gathered concurrently; local details are printed even when
// the backend is down.
func runStatus(ctx context.Context, a *app, _ []string) error {
	var (
		health  *plannerapi.Health
		pingErr error
		cached  []idea.Idea
		p       *prefs.UserPreferences
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		health, pingErr = a.api.Ping(gctx)
		return nil
	})
	g.Go(func() error {
		var err error
		cached, err = a.board.Offline(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		p, err = prefs.Load(gctx, a.prefs)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if a.json() {
		out := map[string]any{
			"backend":      a.cfg.Backend.URL,
			"health":       health,
			"cached_ideas": len(cached),
			"use_context":  p.UseContext,
		}
		if pingErr != nil {
			out["error"] = describeError(pingErr)
		}
		if err := writeJSON(a.stdout, out); err != nil {
			return err
		}
		return pingErr
	}

	if pingErr == nil {
		fmt.Fprintf(a.stdout, "Backend %s is %s (environment %s, model %s).\n",
			a.cfg.Backend.URL, health.Status, health.Environment, health.LLMModel)
	}
	fmt.Fprintf(a.stdout, "Local cache: %d ideas in %s\n", len(cached), a.cfg.DatabasePath())
	state := "off"
	if p.UseContext {
		state = "on"
	}
	fmt.Fprintf(a.stdout, "Chat context: %s\n", state)
	return pingErr
}
