// travel-web runs the HTTP/SSE gateway: session management, the model
// catalog API and chat streaming proxied to the agent service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/config"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/gateway"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/llm"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/logging"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/rpc"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/session"
)

const (
	sessionSweepInterval = 30 * time.Minute
	sessionMaxAge        = 24 * time.Hour
	shutdownGrace        = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "travel-web: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to gateway config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadGateway(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewComponentLogger("travel-web")

	models, err := llm.NewManager(cfg.ModelsPath)
	if err != nil {
		return fmt.Errorf("load model catalog: %w", err)
	}

	agentClient, err := rpc.Dial(cfg.AgentAddr)
	if err != nil {
		return fmt.Errorf("dial agent at %s: %w", cfg.AgentAddr, err)
	}
	defer agentClient.Close()

	store := session.NewStore()
	srv := gateway.NewServer(cfg, store, models, agentClient)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := store.Cleanup(sessionMaxAge); n > 0 {
					logger.Info("swept %d stale sessions", n)
				}
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
