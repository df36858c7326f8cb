// travel-agent runs the agent service: the dispatcher, tool registry and
// model catalog behind the internal gRPC surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/agent"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/config"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/llm"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/logging"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/rpc"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/rpc/agentpb"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/tools"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/tools/travel"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "travel-agent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to agent config file")
	flag.Parse()

	// Local development keys live in .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadAgent(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewComponentLogger("travel-agent")

	models, err := llm.NewManager(cfg.ModelsPath)
	if err != nil {
		return fmt.Errorf("load model catalog: %w", err)
	}

	index, err := travel.LoadIndex(cfg.CitiesPath)
	if err != nil {
		return fmt.Errorf("load city index: %w", err)
	}
	registry := tools.NewRegistry()
	if err := travel.NewToolset(index).Register(registry); err != nil {
		return fmt.Errorf("register travel tools: %w", err)
	}
	executor := tools.NewCachedExecutor(registry, tools.CacheConfig{
		MaxSize: 256,
		TTL:     10 * time.Minute,
		// Terminal answers are turn-specific and must never be replayed.
		ExcludeTools: []string{"final_answer"},
	})

	dispatcher := agent.NewDispatcher(models, executor, index.All(), agent.DispatcherConfig{
		MaxSteps:    cfg.MaxSteps,
		TaskTimeout: cfg.TaskTimeout,
		DefaultMode: cfg.DefaultMode,
	})

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	grpcSrv := grpc.NewServer()
	agentpb.RegisterAgentServiceServer(grpcSrv, rpc.NewServer(dispatcher, models.Active))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("agent service listening on %s (active model %s)", cfg.ListenAddr, models.Active())
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down agent service")
		grpcSrv.GracefulStop()
		return nil
	})
	return g.Wait()
}
