// Command workshopd wires the runtime's collaborators (config, chat
// provider, tool registry, sandbox) into a remoteserver.Server and starts
// listening, following the same construct-then-run shape the sibling agent
// SDK's examples/basic entrypoint uses for a single agent.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quietloop/workshop/pkg/agent"
	"github.com/quietloop/workshop/pkg/config"
	"github.com/quietloop/workshop/pkg/model"
	"github.com/quietloop/workshop/pkg/model/anthropic"
	"github.com/quietloop/workshop/pkg/model/openai"
	"github.com/quietloop/workshop/pkg/remoteserver"
	"github.com/quietloop/workshop/pkg/sandbox"
	"github.com/quietloop/workshop/pkg/security"
	"github.com/quietloop/workshop/pkg/summarize"
	"github.com/quietloop/workshop/pkg/tool"
	toolbuiltin "github.com/quietloop/workshop/pkg/tool/builtin"
	"github.com/quietloop/workshop/pkg/web"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	var configPaths []string
	if p := strings.TrimSpace(os.Getenv("WORKSHOP_CONFIG")); p != "" {
		configPaths = append(configPaths, p)
	}
	cfg, err := config.Load(configPaths)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	if dump, err := cfg.Redacted().DumpYAML(); err == nil {
		logger.Info("effective configuration", zap.String("yaml", dump))
	}

	root, err := sandbox.EnsureRoot(cfg.BaseDir + "/workspace")
	if err != nil {
		return fmt.Errorf("ensure workspace root: %w", err)
	}

	m, err := newModel(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}

	registry, err := newToolRegistry(root, m)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	gate := security.NewGate()
	agentCfg := agent.Config{
		MaxSteps:     cfg.Agent.MaxSteps,
		AutoApprove:  cfg.Server.AutoApprove,
		WhitelistTTL: 10 * time.Minute,
	}

	srv := remoteserver.New(cfg.BaseDir, m, registry, gate, agentCfg, cfg.Server.Token, cfg.Server.AutoApprove, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("workshopd listening", zap.String("addr", addr), zap.String("provider", cfg.LLM.Provider))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE responses stay open for the duration of a turn
	}
	return httpServer.ListenAndServe()
}

func newModel(ctx context.Context, cfg config.LLMConfig) (model.Model, error) {
	factory := model.NewFactory(
		openai.NewProvider(nil),
		anthropic.NewProvider(nil),
	)
	factory.SetDefaultProvider("openai")
	return factory.NewModel(ctx, model.ModelConfig{
		Name:     "default",
		Provider: cfg.Provider,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
	})
}

func newToolRegistry(root string, m model.Model) (*tool.Registry, error) {
	registry := tool.NewRegistry()

	fileTools := toolbuiltin.NewFileTools(root)
	for _, t := range []tool.Tool{fileTools.List(), fileTools.Read(), fileTools.Write(), fileTools.ApplyPatch()} {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	webClient := web.NewClient(web.Config{APIKey: strings.TrimSpace(os.Getenv("WORKSHOP_SEARCH_API_KEY"))})
	webTools := toolbuiltin.NewWebTools(webClient)
	for _, t := range []tool.Tool{webTools.Search(), webTools.Fetch()} {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	summarizer := &summarize.Summarizer{Model: m, Web: webClient, Root: root}
	if err := registry.Register(toolbuiltin.NewSummarizeTool(summarizer)); err != nil {
		return nil, err
	}

	return registry, nil
}
