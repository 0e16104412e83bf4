package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nugget/vibeplanner/internal/board"
	"github.com/nugget/vibeplanner/internal/cover"
	"github.com/nugget/vibeplanner/internal/idea"
	"github.com/nugget/vibeplanner/internal/ideastore"
)

// excerptLen bounds the content preview in the idea list.
const excerptLen = 80

// runIdeas handles "vibeplanner ideas [-offline]".
func runIdeas(ctx context.Context, a *app, args []string) error {
	offline := false
	for _, arg := range args {
		switch arg {
		case "-offline", "--offline":
			offline = true
		default:
			return fmt.Errorf("usage: vibeplanner ideas [-offline]")
		}
	}

	var ideas []idea.Idea
	var err error
	if offline {
		ideas, err = a.board.Offline(ctx)
	} else {
		ideas, err = a.board.Refresh(ctx)
	}
	if err != nil {
		return err
	}

	if a.json() {
		return writeJSON(a.stdout, ideas)
	}
	if len(ideas) == 0 {
		fmt.Fprintln(a.stdout, "No ideas yet.")
		return nil
	}
	for _, i := range ideas {
		printIdea(a, i)
	}
	return nil
}

func printIdea(a *app, i idea.Idea) {
	memo := ""
	if i.AudioAsset != nil {
		memo = " 🎙"
	}
	fmt.Fprintf(a.stdout, "%5d  %-11s  %s%s\n", i.ID, i.Status.OrDefault(), i.Title, memo)
	excerpt, err := cover.Excerpt(i, excerptLen)
	if err != nil {
		a.logger.Debug("excerpt failed", "id", i.ID, "error", err)
		return
	}
	if excerpt != "" {
		fmt.Fprintf(a.stdout, "       %s\n", excerpt)
	}
}

// runAdd handles "vibeplanner add <title> [content]".
func runAdd(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: vibeplanner add <title> [content]")
	}
	draft := idea.Idea{Title: args[0], Content: strings.Join(args[1:], " ")}

	created, err := a.board.Create(ctx, draft)
	return a.reportMutation(created, err)
}

// runEdit handles "vibeplanner edit <id> key=value...". Recognized keys
// are title, content and status.
func runEdit(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: vibeplanner edit <id> title=...|content=...|status=...")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	patch, err := parsePatch(args[1:])
	if err != nil {
		return err
	}

	updated, err := a.board.Update(ctx, id, patch)
	return a.reportMutation(updated, err)
}

// parsePatch builds a patch from key=value pairs.
func parsePatch(pairs []string) (idea.Patch, error) {
	var p idea.Patch
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return p, fmt.Errorf("expected key=value, got %q", pair)
		}
		switch key {
		case "title":
			p.Title = &value
		case "content":
			p.Content = &value
		case "status":
			s := idea.Status(value)
			if !s.Known() {
				return p, fmt.Errorf("unknown status %q (todo, draft, in_progress, done, published)", value)
			}
			p.Status = &s
		default:
			return p, fmt.Errorf("unknown field %q (title, content, status)", key)
		}
	}
	return p, nil
}

// runRemove handles "vibeplanner rm <id>".
func runRemove(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: vibeplanner rm <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	err = a.board.Delete(ctx, id)
	if err != nil && !errors.Is(err, board.ErrStaleView) {
		return err
	}
	if err != nil {
		a.warn(err)
	}
	if a.json() {
		return writeJSON(a.stdout, map[string]int64{"deleted": id})
	}
	fmt.Fprintf(a.stdout, "Deleted idea %d.\n", id)
	return nil
}

// reportMutation prints the server's copy after a create or update. A
// stale view after a confirmed change is only a warning.
func (a *app) reportMutation(i *idea.Idea, err error) error {
	if err != nil && (i == nil || !errors.Is(err, board.ErrStaleView)) {
		return err
	}
	if err != nil {
		a.warn(err)
	}
	if a.json() {
		return writeJSON(a.stdout, i)
	}
	printIdea(a, *i)
	return nil
}

// runExport handles "vibeplanner export [file]". The backup covers the
// backend's ideas plus anything only held in the local cache, so it
// still works offline.
func runExport(ctx context.Context, a *app, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("usage: vibeplanner export [file]")
	}
	path := board.BackupFileName(time.Now())
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := a.board.Refresh(ctx); err != nil {
		a.logger.Warn("exporting local cache only", "error", err)
	}

	var buf bytes.Buffer
	report, err := a.board.Export(ctx, &buf)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	for _, r := range report.Failed() {
		fmt.Fprintf(a.stderr, "warning: idea %d %q exported without its voice memo: %v\n", r.ID, r.Title, r.Err)
	}
	if a.json() {
		return writeJSON(a.stdout, map[string]any{"file": path, "written": report.Written, "failed": len(report.Failed())})
	}
	fmt.Fprintf(a.stdout, "Exported %d ideas to %s.\n", report.Written, path)
	return nil
}

// runImport handles "vibeplanner import <file>".
func runImport(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: vibeplanner import <file>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	report, err := a.board.Import(ctx, f)
	if err != nil {
		return err
	}

	for _, r := range report.Failed() {
		fmt.Fprintf(a.stderr, "warning: record %d skipped: %v\n", r.Index, r.Err)
	}
	if a.json() {
		return writeJSON(a.stdout, map[string]any{"imported": report.Imported, "skipped": len(report.Failed())})
	}
	fmt.Fprintf(a.stdout, "Imported %d ideas into the local cache.\n", report.Imported)
	return nil
}

// runCover handles "vibeplanner cover <id>". The idea is looked up on
// the backend first and in the local cache when it is not there.
func runCover(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: vibeplanner cover <id> > card.html")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	ideas, err := a.board.Refresh(ctx)
	if err != nil {
		a.logger.Warn("backend unavailable, looking in local cache", "error", err)
	}
	if i, ok := findIdea(ideas, id); ok {
		return cover.Render(a.stdout, i)
	}

	cached, cerr := a.board.Cached(ctx, id)
	switch {
	case errors.Is(cerr, ideastore.ErrNotFound) && err != nil:
		return err
	case errors.Is(cerr, ideastore.ErrNotFound):
		return fmt.Errorf("idea %d not found", id)
	case cerr != nil:
		return cerr
	}
	return cover.Render(a.stdout, *cached)
}

func findIdea(ideas []idea.Idea, id int64) (idea.Idea, bool) {
	for _, i := range ideas {
		if i.ID == id {
			return i, true
		}
	}
	return idea.Idea{}, false
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid idea id %q", s)
	}
	return id, nil
}
