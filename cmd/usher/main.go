// Usher is a conversational Q&A assistant for events.
//
// It answers participant questions from a curated knowledge document,
// offers escalation to human organizers when it cannot help, and keeps
// per-session conversation state so follow-ups work naturally. It exposes
// an HTTP JSON API with a websocket variant, an optional MQTT bridge for
// kiosks, and a CLI for interactive and one-shot use. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	usher serve              Start the API server
//	usher init [dir]         Write an example config to get started
//	usher chat               Interactive chat session in the terminal
//	usher ask <question>     Ask a single question (for testing)
//	usher version            Print version and build information
//	usher -o json version    Output version information as JSON
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/usher-agent/usher/examples"
	"github.com/usher-agent/usher/internal/api"
	"github.com/usher-agent/usher/internal/buildinfo"
	"github.com/usher-agent/usher/internal/config"
	"github.com/usher-agent/usher/internal/engine"
	"github.com/usher-agent/usher/internal/escalation"
	"github.com/usher-agent/usher/internal/knowledge"
	"github.com/usher-agent/usher/internal/llm"
	"github.com/usher-agent/usher/internal/mqtt"
	"github.com/usher-agent/usher/internal/session"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the usher command. All OS-level
// dependencies are injected as parameters so the lifecycle can be driven
// from tests. Arguments are parsed by hand: the flag package relies on
// package-level globals (flag.CommandLine), which makes it impossible to
// call run() concurrently from tests, and our argument surface is small.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
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
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "chat":
		return runChat(ctx, stdin, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: usher ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// usher is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Usher - Event Q&A Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: usher [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Write an example config to get started (default: .)")
	fmt.Fprintln(w, "  chat         Interactive chat session in the terminal")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// runInit handles "usher init [dir]": it writes the example config into
// dir as a starting point. An existing config is never overwritten.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	path := filepath.Join(dir, "usher.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", path)
	}
	if err := os.WriteFile(path, examples.ConfigYAML, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Fprintf(stdout, "wrote %s\n", path)
	fmt.Fprintln(stdout, "Edit it (model api_key, knowledge path, escalation) and run: usher serve")
	return nil
}

// runServe handles "usher serve". It wires the full stack (engine, HTTP
// API, optional MQTT bridge) and blocks until interrupted.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level)
	logger.Info("starting usher",
		"version", buildinfo.Version,
		"config", cfgPath,
	)

	eng, cleanup, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	listen := net.JoinHostPort(cfg.Listen.Address, strconv.Itoa(cfg.Listen.Port))
	server := api.NewServer(listen, eng, logger)

	errCh := make(chan error, 2)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	var bridge *mqtt.Bridge
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("mqtt instance ID: %w", err)
		}
		logger.Info("mqtt bridge enabled", "instance", instanceID, "broker", cfg.MQTT.Broker)

		bridge = mqtt.NewBridge(cfg.MQTT, instanceID, eng, logger)
		go func() {
			if err := bridge.Start(ctx); err != nil {
				errCh <- fmt.Errorf("mqtt bridge: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if bridge != nil {
		if err := bridge.Stop(shutdownCtx); err != nil {
			logger.Warn("mqtt shutdown failed", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// runChat handles "usher chat": an interactive terminal session against
// a single local conversation.
func runChat(ctx context.Context, stdin io.Reader, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(io.Discard, slog.LevelInfo) // keep the terminal clean

	eng, cleanup, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	name := cfg.Assistant.Name
	if name == "" {
		name = "usher"
	}
	fmt.Fprintf(stdout, "%s ready (config: %s). Type 'quit' to exit.\n", name, cfgPath)

	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}

		reply := eng.Answer(ctx, line, "local")
		fmt.Fprintf(stdout, "%s\n\n", reply)
	}
}

// runAsk handles "usher ask <question>": one question, one answer,
// printed to stdout. Useful for smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(io.Discard, slog.LevelInfo)

	eng, cleanup, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	question := strings.Join(args, " ")
	fmt.Fprintln(stdout, eng.Answer(ctx, question, "cli"))
	return nil
}

// buildEngine constructs the engine and its collaborators from config.
// The returned cleanup closes any resources (currently the SQLite store).
func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, func(), error) {
	cleanup := func() {}

	loc := time.UTC
	if cfg.Assistant.Timezone != "" {
		l, err := time.LoadLocation(cfg.Assistant.Timezone)
		if err != nil {
			return nil, nil, fmt.Errorf("load timezone %q: %w", cfg.Assistant.Timezone, err)
		}
		loc = l
	}

	client, err := createLLMClient(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	document, err := knowledge.LoadDocument(cfg.Knowledge.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("load knowledge document: %w", err)
	}
	kbModel := cfg.Knowledge.Model
	if kbModel == "" {
		kbModel = cfg.Model.Name
	}
	kb := knowledge.NewGrounded(client, kbModel, document, loc, logger)

	store, storeCleanup, err := createStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if storeCleanup != nil {
		cleanup = storeCleanup
	}

	esc := createEscalator(cfg, logger)

	eng := engine.New(logger, client, cfg.Model.Name, store, kb, esc, cfg.Assistant, loc)
	return eng, cleanup, nil
}

// createLLMClient builds the model client for the configured provider.
func createLLMClient(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	switch cfg.Model.Provider {
	case "openai":
		if cfg.Model.APIKey == "" {
			return nil, fmt.Errorf("model provider %q requires api_key", cfg.Model.Provider)
		}
		return llm.NewOpenAIClient(cfg.Model.APIKey, cfg.Model.BaseURL, logger), nil
	case "ollama", "":
		return llm.NewOllamaClient(cfg.Model.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown model provider: %q", cfg.Model.Provider)
	}
}

// createStore builds the session store for the configured backend.
func createStore(cfg *config.Config, logger *slog.Logger) (session.Store, func(), error) {
	switch cfg.Sessions.Backend {
	case "sqlite":
		dbPath := cfg.Sessions.DBPath
		if dbPath == "" {
			dbPath = "sessions.db"
		}
		store, err := session.NewSQLiteStore("sqlite3", dbPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open session store: %w", err)
		}
		logger.Info("session store ready", "backend", "sqlite", "path", dbPath)
		return store, func() { store.Close() }, nil
	case "memory", "":
		logger.Info("session store ready", "backend", "memory")
		return session.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown sessions backend: %q", cfg.Sessions.Backend)
	}
}

// createEscalator picks the configured escalation channel. Discord wins
// when both are configured; nil means escalation is simply absent and
// confirmed escalations produce a generic acknowledgement.
func createEscalator(cfg *config.Config, logger *slog.Logger) escalation.Escalator {
	switch {
	case cfg.Escalation.Discord.Configured():
		logger.Info("escalation channel", "kind", "discord")
		return escalation.NewDiscordWebhook(cfg.Escalation.Discord, logger)
	case cfg.Escalation.Email.Configured():
		logger.Info("escalation channel", "kind", "email")
		return escalation.NewEmail(cfg.Escalation.Email, logger)
	default:
		logger.Info("escalation not configured")
		return nil
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
