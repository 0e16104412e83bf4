// Command vibeplanner is a terminal client for the VibePlanner content
// planning backend: the idea board, the strategy profile and the
// streamed producer chat.
//
// Usage:
//
//	vibeplanner [-config path] [-o text|json] <command> [args]
//
// Run "vibeplanner -h" for the list of commands.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nugget/vibeplanner/internal/board"
	"github.com/nugget/vibeplanner/internal/buildinfo"
	"github.com/nugget/vibeplanner/internal/chat"
	"github.com/nugget/vibeplanner/internal/config"
	"github.com/nugget/vibeplanner/internal/idea"
	"github.com/nugget/vibeplanner/internal/ideastore"
	"github.com/nugget/vibeplanner/internal/plannerapi"
	"github.com/nugget/vibeplanner/internal/prefs"
	"github.com/nugget/vibeplanner/internal/strategy"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main builds the OS-level environment and hands off to [run] so the
// command surface can be driven from tests.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		cancel()
		os.Exit(1)
	}
}

// run parses args and dispatches one command. Command output goes to
// stdout; logs and warnings go to stderr. Cancelling ctx stops any
// request in flight.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			// Everything after the command belongs to it.
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "", "help":
		return printUsage(stdout)
	case "version":
		return runVersion(stdout, outputFmt)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	}

	handler, ok := commands[command]
	if !ok {
		return fmt.Errorf("unknown command: %s", command)
	}

	a, err := openApp(ctx, configPath, outputFmt, stdout, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	return handler(ctx, a, cmdArgs)
}

// commandFunc runs one subcommand against a wired app.
type commandFunc func(ctx context.Context, a *app, args []string) error

var commands map[string]commandFunc

func init() {
	commands = map[string]commandFunc{
		"ideas":    runIdeas,
		"add":      runAdd,
		"edit":     runEdit,
		"rm":       runRemove,
		"export":   runExport,
		"import":   runImport,
		"cover":    runCover,
		"chat":     runChat,
		"context":  runContext,
		"strategy": runStrategy,
		"enhance":  runEnhance,
		"trends":   runTrends,
		"graph":    runGraph,
		"status":   runStatus,
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		return writeJSON(w, info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "VibePlanner - content planning from the terminal")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: vibeplanner [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Ideas:")
	fmt.Fprintln(w, "  ideas [-offline]              List ideas (backend, or the local cache)")
	fmt.Fprintln(w, "  add <title> [content]         Create an idea")
	fmt.Fprintln(w, "  edit <id> key=value...        Change title, content or status")
	fmt.Fprintln(w, "  rm <id>                       Delete an idea")
	fmt.Fprintln(w, "  export [file]                 Write a backup (default vibe_backup_<date>.json)")
	fmt.Fprintln(w, "  import <file>                 Restore a backup into the local cache")
	fmt.Fprintln(w, "  cover <id>                    Print the HTML cover card of an idea")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Assistant:")
	fmt.Fprintln(w, "  chat [-strategy] <question>   Ask the producer assistant")
	fmt.Fprintln(w, "  context [show|on|off|set <text>|reset]")
	fmt.Fprintln(w, "                                Manage the saved chat context")
	fmt.Fprintln(w, "  strategy [score]              Show the strategy profile")
	fmt.Fprintln(w, "  strategy save <file.json>     Replace the strategy profile")
	fmt.Fprintln(w, "  enhance <title> [content]     Turn a draft into a script outline")
	fmt.Fprintln(w, "  trends [topic]                Suggest trending topics")
	fmt.Fprintln(w, "  graph [limit]                 Summarize the knowledge graph")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Other:")
	fmt.Fprintln(w, "  status                        Check the backend")
	fmt.Fprintln(w, "  init [dir]                    Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  version                       Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/vibeplanner/config.yaml, /etc/vibeplanner/config.yaml")
	return nil
}

// app holds the components shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	outputFmt string
	stdout    io.Writer
	stderr    io.Writer

	db       *sql.DB
	api      *plannerapi.Client
	board    *board.Coordinator
	prefs    *prefs.Store
	strategy *strategy.Store
}

// openApp loads configuration, opens the local database and wires the
// backend client into the board and strategy stores.
func openApp(ctx context.Context, configPath, outputFmt string, stdout, stderr io.Writer) (*app, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(stderr, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfgPath != "" {
		logger.Debug("config loaded", "path", cfgPath)
	} else {
		logger.Debug("no config file found, using defaults")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite3", cfg.DatabasePath()+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath(), err)
	}

	cache, err := ideastore.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	prefStore, err := prefs.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	api := plannerapi.NewClient(cfg.Backend.URL, cfg.Backend.Token, cfg.Backend.Timeout, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		outputFmt: outputFmt,
		stdout:    stdout,
		stderr:    stderr,
		db:        db,
		api:       api,
		board:     board.New(api, cache, logger),
		prefs:     prefStore,
		strategy:  strategy.NewStore(api, logger),
	}, nil
}

// Close releases the local database.
func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) json() bool { return a.outputFmt == "json" }

// warn prints a non-fatal notice to stderr.
func (a *app) warn(err error) {
	fmt.Fprintln(a.stderr, "warning:", describeError(err))
}

// newChat starts a conversation using p for the context prefix.
func (a *app) newChat(p *prefs.UserPreferences) *chat.Client {
	return chat.New(a.api, p, a.cfg.Chat.FailureNotice, a.logger)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used and must exist. When no file is
// found the built-in defaults apply. A .env file beside the config is
// loaded first. Returns the validated config and
// the path that was loaded, or "" for defaults.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	if err := config.LoadDotEnv(cfgPath); err != nil {
		return nil, cfgPath, err
	}

	cfg := config.Default()
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// describeError turns an error into the notice shown to the user.
func describeError(err error) string {
	var rejected *plannerapi.RejectedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	case errors.Is(err, plannerapi.ErrNetworkUnavailable):
		return "Cannot reach the backend. Check that it is running."
	case errors.Is(err, plannerapi.ErrMalformedResponse):
		return "The backend sent a response that could not be read."
	case errors.As(err, &rejected):
		if rejected.Detail != "" {
			return "The backend refused: " + rejected.Detail
		}
		return fmt.Sprintf("The backend refused the request (HTTP %d).", rejected.StatusCode)
	case errors.Is(err, idea.ErrEmptyTitle):
		return "Give the idea a title first."
	case errors.Is(err, idea.ErrNothingToEnhance):
		return "Write a title or a thought first."
	case errors.Is(err, board.ErrMutationInProgress):
		return "Another change to this idea is still running."
	case errors.Is(err, board.ErrInvalidImportFormat):
		return "Invalid file format: a backup is a JSON array of ideas."
	case errors.Is(err, board.ErrNothingToExport):
		return "Nothing to export."
	case errors.Is(err, chat.ErrTurnInProgress):
		return "The assistant is still answering."
	case errors.Is(err, chat.ErrEmptyQuestion):
		return "Ask a question first."
	}
	return err.Error()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
