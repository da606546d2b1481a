package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/stream/internal/backend"
	"github.com/hpungsan/stream/internal/config"
	"github.com/hpungsan/stream/internal/db"
	"github.com/hpungsan/stream/internal/logger"
	"github.com/hpungsan/stream/internal/mcp"
	"github.com/hpungsan/stream/internal/pgstore"
	"github.com/hpungsan/stream/internal/session"
	"github.com/hpungsan/stream/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"create": true, "paste": true, "list": true, "get": true,
	"update": true, "delete": true, "classify": true, "compile": true,
	"stack": true, "color": true, "serve": true, "watch": true,
	"dryrun": true, "help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
       _
   ___| |_ _ __ ___  __ _ _ __ ___
  / __| __| '__/ _ \/ _' | '_ ' _ \
  \__ \ |_| | |  __/ (_| | | | | | |
  |___/\__|_|  \___|\__,_|_| |_| |_|

  Prompt fragment library

  Usage: stream <command> [options]
         stream --help

  MCP server mode requires piped input.`)
}

// openBackend connects the configured persistence backend.
func openBackend(ctx context.Context, cfg *config.Config, baseDir string, log *logger.Logger) (backend.Backend, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("backend %q needs database_url or STREAM_DATABASE_URL", cfg.Backend)
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case config.BackendREST:
		return backend.NewREST(cfg.APIURL, &http.Client{Timeout: cfg.PersistTimeout()}), nil
	case config.BackendSQLite, "":
		database, err := db.Init(baseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		db.ConfigurePool(database, cfg)
		if seeded, err := db.Seed(ctx, database); err != nil {
			log.Warn("seed failed", "error", err)
		} else if seeded {
			log.Info("seeded prompt library")
		}
		return backend.NewSQLite(database), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before touching any backend
	if isHelpOrVersion() {
		app := newCLIApp(nil, config.DefaultConfig(), logger.Nop())
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	cliMode := isCLIMode()
	if !cliMode && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'stream --help' for usage.\n")
		os.Exit(1)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fatal("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".stream")

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	cfg.ApplyEnv()
	if cfg.IntakeDir == "" {
		cfg.IntakeDir = filepath.Join(baseDir, "inbox")
	}

	log, err := logger.New(cfg.LogMode, cfg.LogFile)
	if err != nil {
		fatal("failed to start logger: %v", err)
	}
	defer log.Sync()

	ctx := context.Background()
	b, err := openBackend(ctx, cfg, baseDir, log)
	if err != nil {
		fatal("%v", err)
	}

	sess, err := session.Open(ctx, b, cfg, session.Options{Logger: log})
	if err != nil {
		fatal("%v", err)
	}
	sess.Store.Subscribe(func(n store.Notice) {
		if n.Level == store.LevelError {
			fmt.Fprintf(os.Stderr, "warning: %s\n", n.Message)
		}
	})

	var runErr error
	if cliMode {
		runErr = newCLIApp(sess, cfg, log).Run(os.Args)
	} else {
		if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
			log.Warn("unknown disabled_tools", "tools", unknown)
		}
		if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
			log.Warn("unknown disabled_types", "types", unknown)
		}
		runErr = mcp.Run(sess, cfg, Version)
	}

	// Pending deletes are committed before the process exits.
	closeCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.PersistTimeout()+time.Second)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if runErr != nil {
		fatal("%v", runErr)
	}
}
