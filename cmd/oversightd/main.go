// Command oversightd runs the agent runtime's HTTP server: it loads a YAML
// config, wires the LLM pipeline, tool registry, memory, loop detector, and
// authorization coordinator into an agent.Engine, and serves the runtime's
// REST+SSE surface over HTTP. Grounded on cmd/hector/main.go's kong-based
// CLI shape, trimmed from Hector's multi-agent zero-config surface to this
// runtime's single-agent, config-file-only startup path.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/oversight/internal/agent"
	"github.com/kadirpekel/oversight/internal/authn"
	"github.com/kadirpekel/oversight/internal/authz"
	"github.com/kadirpekel/oversight/internal/config"
	"github.com/kadirpekel/oversight/internal/httpapi"
	"github.com/kadirpekel/oversight/internal/llm"
	"github.com/kadirpekel/oversight/internal/llm/providers"
	"github.com/kadirpekel/oversight/internal/loopdetect"
	"github.com/kadirpekel/oversight/internal/memory"
	"github.com/kadirpekel/oversight/internal/observability"
	"github.com/kadirpekel/oversight/internal/tool"
)

// buildVersion is overridden at build time via -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

// CLI is the top-level kong command tree.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the agent runtime HTTP server."`
	Validate ValidateCmd `cmd:"" help:"Validate a config file and exit."`
	Schema   SchemaCmd   `cmd:"" help:"Print the config file's JSON Schema."`
	Version  VersionCmd  `cmd:"" help:"Print version information."`

	Config   string `short:"c" help:"Path to config file." default:"oversight.yaml" type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// SchemaCmd prints the JSON Schema for the config file shape, so external
// tooling (editors, config-builder UIs) can validate or auto-generate
// oversight.yaml without hand-maintaining a second schema definition.
type SchemaCmd struct {
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{AllowAdditionalProperties: false, DoNotReference: true}
	schema := reflector.Reflect(&config.Config{})
	schema.ID = "https://oversight.dev/schemas/config.json"
	schema.Title = "Agent Runtime Configuration Schema"
	schema.Description = "Configuration schema for the oversightd agent runtime."

	enc := json.NewEncoder(os.Stdout)
	if !c.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(schema)
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("oversightd %s\n", buildVersion)
	return nil
}

// ValidateCmd parses and validates the config file without starting a server.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	data, err := os.ReadFile(cli.Config)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if _, err := config.Parse(data); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}

// ServeCmd starts the runtime's HTTP server.
type ServeCmd struct {
	Port  int  `help:"Override server.port from the config file."`
	Watch bool `help:"Hot-reload the config file on changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	if err := config.LoadEnvFiles(); err != nil {
		slog.Warn("load .env files", "error", err)
	}

	loader, err := config.NewLoader(cli.Config)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer rt.close(ctx)

	if c.Watch {
		go func() {
			if err := loader.Watch(ctx, func(newCfg *config.Config) {
				slog.Info("config changed; applying authorization mode (tool set changes require a restart to take effect)")
				rt.authz.SetMode(authz.Mode(newCfg.Authorization.Mode))
			}); err != nil && ctx.Err() == nil {
				slog.Error("config watch stopped", "error", err)
			}
		}()
	}

	srv := httpapi.New(
		httpapi.Config{
			Version:          buildVersion,
			IceBreakerPrompt: cfg.Prompts["ice_breaker"],
			KeepAlive:        30 * time.Second,
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			MaxHistorySteps:  cfg.Agent.Behavior.Memory.MaxHistorySteps,
		},
		rt.engine, rt.registry, rt.authz, rt.mem, rt.authnValidator, rt.obs,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("oversightd listening", "addr", addr, "agent", cfg.Agent.Name)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// runtime bundles every collaborator the HTTP surface and engine share.
type runtime struct {
	engine         *agent.Engine
	registry       *tool.Registry
	mem            *memory.AgentMemory
	authz          *authz.Coordinator
	obs            *observability.Manager
	authnValidator *authn.Validator
	closers        []func()
}

func (r *runtime) close(ctx context.Context) {
	for _, c := range r.closers {
		c()
	}
	if r.obs != nil {
		_ = r.obs.Shutdown(ctx)
	}
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{}

	rt.authz = authz.New(
		authz.WithMode(authz.Mode(cfg.Authorization.Mode)),
		authz.WithTimeout(time.Duration(cfg.Authorization.TimeoutSec)*time.Second),
	)
	if !cfg.Authorization.Enabled {
		rt.authz.SetMode(authz.ModeAlwaysAllow)
	}

	rt.registry = tool.NewRegistry(rt.authz, cfg.Tools.FailThreshold)
	if cfg.Tools.Calculator {
		rt.registry.Register(tool.Calculator{})
	}
	if cfg.Tools.CodeExecutor.Enabled {
		execTool, closeExec, err := tool.ConnectCodeExecutor(tool.CodeExecutorConfig{BinaryPath: cfg.Tools.CodeExecutor.BinaryPath})
		if err != nil {
			return nil, fmt.Errorf("connect code executor: %w", err)
		}
		rt.registry.Register(execTool)
		rt.closers = append(rt.closers, closeExec)
	}
	for _, mcpCfg := range cfg.Tools.MCPServers {
		tools, closeMCP, err := tool.ConnectMCPServer(ctx, tool.MCPServerConfig{
			Name: mcpCfg.Name, Command: mcpCfg.Command, Args: mcpCfg.Args, MaxResponseTokens: mcpCfg.TokenCap,
		})
		if err != nil {
			return nil, fmt.Errorf("connect mcp server %s: %w", mcpCfg.Name, err)
		}
		for _, t := range tools {
			rt.registry.Register(t)
		}
		rt.closers = append(rt.closers, func() { _ = closeMCP() })
	}
	// cfg.Tools.RAGSearch is intentionally not wired here: rag_search needs
	// a tool.RAGCollaborator backed by a vector store, which is out of
	// scope (see the RAGCollaborator doc in internal/tool/ragsearch.go).

	truncator, pipeline, err := buildLLMPipeline(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("build llm pipeline: %w", err)
	}

	memOpts := []memory.Option{memory.WithSummarizer(truncator)}
	if path := cfg.Agent.Behavior.Memory.SummaryCachePath; path != "" {
		cache, err := memory.OpenSQLiteSummaryCache(path)
		if err != nil {
			return nil, fmt.Errorf("open summary cache: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = cache.Close() })
		memOpts = append(memOpts, memory.WithPersistentSummaryCache(ctx, cache, cfg.Agent.Name))
	}
	rt.mem = memory.New(memOpts...)
	detector := loopdetect.New(loopdetect.DefaultConfig())

	rt.engine = agent.New(
		agent.Config{SystemPrompt: cfg.Prompts["system"], MaxSteps: cfg.Agent.MaxSteps},
		pipeline, rt.registry, toolSpecs(rt.registry), rt.mem, detector, rt.authz,
	)

	exporter := "stdout"
	if cfg.Tracing.Endpoint != "" {
		exporter = "otlp"
	}
	obsCfg := &observability.Config{
		Tracing: observability.TracingConfig{
			Enabled: cfg.Tracing.Enabled, Exporter: exporter, Endpoint: cfg.Tracing.Endpoint,
			SamplingRate: cfg.Tracing.SampleRate, ServiceName: cfg.Agent.Name,
		},
		Metrics: observability.MetricsConfig{Enabled: cfg.Tracing.Enabled},
	}
	obs, err := observability.NewManager(ctx, obsCfg)
	if err != nil {
		return nil, fmt.Errorf("build observability: %w", err)
	}
	rt.obs = obs

	if cfg.Server.Auth.Enabled {
		validator, err := authn.NewValidator(ctx, cfg.Server.Auth.JWKSURL, cfg.Server.Auth.Issuer, cfg.Server.Auth.Audience)
		if err != nil {
			return nil, fmt.Errorf("build authn validator: %w", err)
		}
		rt.authnValidator = validator
	}

	return rt, nil
}

// buildLLMPipeline composes Validator ⇒ AutoRecovery ⇒ ContextTruncator ⇒
// provider client (spec §4.4), selecting the provider by cfg.Provider. The
// ContextTruncator is also returned directly since it doubles as
// memory.Summarizer for the memory store's summarize-eviction policies.
func buildLLMPipeline(ctx context.Context, cfg config.LLMConfig) (*llm.ContextTruncator, llm.Generator, error) {
	apiKey := cfg.Auth.ResolveAPIKey(cfg.Provider)

	var provider llm.Generator
	switch cfg.Provider {
	case "openai":
		p := providers.NewOpenAI(apiKey, cfg.Model)
		if cfg.Auth.BaseURL != "" {
			p.Host = cfg.Auth.BaseURL
		}
		provider = p
	case "anthropic":
		provider = providers.NewAnthropic(apiKey, cfg.Model)
	case "gemini":
		g, err := providers.NewGemini(ctx, apiKey, cfg.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("init gemini client: %w", err)
		}
		provider = g
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	truncator := llm.NewContextTruncator(provider)
	recovery := llm.NewAutoRecovery(truncator)
	return truncator, &llm.Validator{Next: recovery}, nil
}

func toolSpecs(registry *tool.Registry) []llm.ToolSpec {
	metas := registry.List()
	specs := make([]llm.ToolSpec, 0, len(metas))
	for _, m := range metas {
		specs = append(specs, llm.ToolSpec{Name: m.Name, Description: m.Description, Parameters: m.InputSchema})
	}
	return specs
}

func configureLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func main() {
	cli := CLI{}
	ktx := kong.Parse(&cli,
		kong.Name("oversightd"),
		kong.Description("Agent runtime HTTP server"),
		kong.UsageOnError(),
	)

	configureLogging(cli.LogLevel)

	err := ktx.Run(&cli)
	ktx.FatalIfErrorf(err)
}
