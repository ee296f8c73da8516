package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dotsetgreg/memvault/pkg/config"
	"github.com/dotsetgreg/memvault/pkg/logger"
	"github.com/dotsetgreg/memvault/pkg/memory"
	"github.com/dotsetgreg/memvault/pkg/tools"
	"github.com/dotsetgreg/memvault/pkg/vecstore"
)

const appName = "memvault"

var version = "dev"

const serverInstructions = `memvault stores short text memories in a vector store and retrieves them
by semantic similarity. Use save_memory to persist facts, preferences and
decisions worth remembering across conversations; search_memory to recall
them; list_memories, get_memory_content and delete_memory to manage them.
Secrets are redacted on save by default (best-effort). Tag filters require
the exact tag list in the order it was stored.`

func main() {
	// Matches the deployment convention of keeping the OpenAI key in .env.
	_ = godotenv.Load()

	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newService wires the configured backend into a memory service. The
// returned cleanup is always non-nil.
func newService(cfgPath string) (*memory.Service, func(), error) {
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, func() {}, err
	}
	logger.SetLevel(cfg.Log.Level)

	var client vecstore.Client
	cleanup := func() {}
	switch cfg.Backend.Kind {
	case "local":
		local, err := vecstore.NewSQLiteClient(cfg.LocalDBPath())
		if err != nil {
			return nil, cleanup, fmt.Errorf("open local backend: %w", err)
		}
		cleanup = func() { _ = local.Close() }
		client = local
	case "", "openai":
		client = vecstore.NewOpenAIClient().
			WithAPIKey(cfg.Backend.OpenAI.APIKey).
			WithBaseURL(cfg.Backend.OpenAI.APIBase)
	default:
		return nil, cleanup, fmt.Errorf("unknown backend %q (want openai or local)", cfg.Backend.Kind)
	}

	svc := memory.NewService(client, memory.Options{
		StoreName:       cfg.Memories.StoreName,
		StoreID:         cfg.Memories.StoreID,
		MaxMemoryChars:  cfg.Memories.MaxChars,
		RedactByDefault: cfg.Memories.RedactSecrets,
	})
	return svc, cleanup, nil
}

func runServe(cfgPath string) error {
	svc, cleanup, err := newService(cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	s := server.NewMCPServer(appName, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)
	tools.New(svc).Register(s)

	logger.InfoCF("server", "Serving MCP over stdio",
		map[string]interface{}{"version": version})
	return server.ServeStdio(s)
}

func runHealth(cfgPath string) error {
	svc, cleanup, err := newService(cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	return printJSON(svc.Health())
}

func runSweep(cfgPath string, limit int, purge bool, cronExpr string) error {
	svc, cleanup, err := newService(cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if cronExpr == "" {
		res, err := svc.SweepOrphans(context.Background(), limit, purge)
		if err != nil {
			return err
		}
		return printJSON(res)
	}

	g := gronx.New()
	if !g.IsValid(cronExpr) {
		return fmt.Errorf("invalid cron expression %q", cronExpr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoCF("sweep", "Sweeper running",
		map[string]interface{}{"cron": cronExpr, "purge": purge})

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.InfoC("sweep", "Sweeper stopped")
			return nil
		case <-ticker.C:
			due, err := g.IsDue(cronExpr)
			if err != nil || !due {
				continue
			}
			res, err := svc.SweepOrphans(ctx, limit, purge)
			if err != nil {
				logger.ErrorCF("sweep", "Sweep pass failed",
					map[string]interface{}{"error": err.Error()})
				continue
			}
			logger.InfoCF("sweep", "Sweep pass complete", map[string]interface{}{
				"scanned": res.Scanned,
				"orphans": len(res.Orphans),
				"purged":  res.Purged,
			})
		}
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, version)
}
