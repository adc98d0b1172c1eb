package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/ibeventd/internal/config"
	"git.home.luguber.info/inful/ibeventd/internal/daemon"
	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
	"git.home.luguber.info/inful/ibeventd/internal/gateway/sim"
	"git.home.luguber.info/inful/ibeventd/internal/logfields"
	"git.home.luguber.info/inful/ibeventd/internal/registry"
	"git.home.luguber.info/inful/ibeventd/internal/script"
	"git.home.luguber.info/inful/ibeventd/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path (optional, env vars always apply)"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct {
		Simulate bool `help:"Run against the built-in simulated gateway"`
	} `cmd:"" help:"Connect to the gateway and dispatch events to handlers"`

	CheckConfig struct{} `cmd:"" name:"check-config" help:"Load and validate configuration, then exit"`

	Handlers struct{} `cmd:"" help:"Discover handler scripts and list registrations without connecting"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	kctx := kong.Parse(&CLI)

	if kctx.Command() == "version" {
		fmt.Printf("ibeventd %s (commit %s, built %s)\n",
			version.Version, version.GitCommit, version.BuildTime)
		return
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		// Logging is not configured yet; use the default handler.
		exitWith(err)
	}
	setupLogging(cfg.Log, CLI.Verbose)

	switch kctx.Command() {
	case "run":
		err = runDaemon(cfg)
	case "check-config":
		err = checkConfig(cfg)
	case "handlers":
		err = listHandlers(cfg)
	}
	if err != nil {
		exitWith(err)
	}
}

func exitWith(err error) {
	adapter := ferrors.NewCLIErrorAdapter(CLI.Verbose, nil)
	adapter.LogError(err)
	os.Exit(adapter.ExitCodeFor(err))
}

// setupLogging configures the process-wide slog default from the log
// section: level, text or json format, optional log file.
func setupLogging(lc config.LogConfig, verbose bool) {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Warn("Cannot open log file, logging to stdout",
				logfields.Path(lc.File), logfields.Error(err))
		} else {
			out = f
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(lc.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func runDaemon(cfg *config.Config) error {
	if !CLI.Run.Simulate {
		return ferrors.ConfigError("no broker gateway transport is bundled; run with --simulate").
			Build()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := sim.New()
	d, err := daemon.New(cfg, client)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, d.Stop)
	defer stop()

	slog.Info("Starting ibeventd",
		slog.String("version", version.Version),
		logfields.Host(cfg.Gateway.Host),
		logfields.Port(cfg.Gateway.Port))
	return d.Run(ctx)
}

func checkConfig(cfg *config.Config) error {
	fmt.Printf("gateway:    %s (client id %d, timeout %s, readonly %t)\n",
		cfg.Gateway.Addr(), cfg.Gateway.ClientID, cfg.Gateway.Timeout, cfg.Gateway.ReadOnly)
	fmt.Printf("handlers:   %d search path(s), watch=%t\n",
		len(cfg.Handler.Paths), cfg.Handler.Watch)
	for _, p := range cfg.Handler.Paths {
		fmt.Printf("  - %s\n", p)
	}
	fmt.Printf("retry:      %d retries, %s delay, auto_reconnect=%t\n",
		cfg.Handler.MaxRetries, cfg.Handler.RetryDelay, cfg.Handler.AutoReconnect)
	fmt.Printf("mirror:     %s", cfg.Mirror.Mode)
	if cfg.Mirror.Mode == config.MirrorNATS {
		fmt.Printf(" (%s, subject prefix %q)", cfg.Mirror.NATSURL, cfg.Mirror.SubjectPrefix)
	}
	fmt.Println()
	fmt.Printf("metrics:    enabled=%t listen=%s\n", cfg.Metrics.Enabled, cfg.Metrics.Listen)
	fmt.Printf("heartbeat:  enabled=%t interval=%s\n", cfg.Heartbeat.Enabled, cfg.Heartbeat.Interval)
	fmt.Println("configuration OK")
	return nil
}

// listHandlers runs discovery without a gateway connection and prints what
// would be registered.
func listHandlers(cfg *config.Config) error {
	ctx := context.Background()
	loader := script.NewLoader()
	defer loader.Close()

	reg := registry.New()
	results := reg.DiscoverHandlers(ctx, loader, cfg.Handler.Paths)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Printf("FAILED  %s: %v\n", res.Path, res.Err)
		}
	}

	for _, event := range reg.Events() {
		fmt.Printf("%s\n", event)
		for _, r := range reg.HandlersFor(event) {
			fmt.Printf("  %-6s %-24s %s\n", r.Kind, r.Name, r.Source)
		}
	}
	fmt.Printf("%d handler(s) across %d event(s), %d script(s) failed\n",
		reg.Len(), len(reg.Events()), failed)

	if failed > 0 {
		return ferrors.ScriptError("some handler scripts failed to load").
			WithContext("failed", failed).Build()
	}
	return nil
}
