package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
	"google.golang.org/genai"

	"github.com/Dev-Umb/wife-generate-game/internal/config"
	"github.com/Dev-Umb/wife-generate-game/internal/imagegen"
	"github.com/Dev-Umb/wife-generate-game/internal/logger"
	"github.com/Dev-Umb/wife-generate-game/internal/metrics"
	"github.com/Dev-Umb/wife-generate-game/internal/provider"
	"github.com/Dev-Umb/wife-generate-game/internal/session"
)

var (
	cfgFile      string
	modelFlag    string
	providerFlag string
	verboseFlag  bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	var opts playOptions
	rootCmd := &cobra.Command{
		Use:   "waifu",
		Short: "Text-and-image roleplay companion",
		Long:  "waifu plays an illustrated roleplay with a generated character. Running it with no subcommand starts play.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/waifu/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "show tool results and retries (default: on when stdout is a terminal)")
	opts.bind(rootCmd)

	// Subcommands
	rootCmd.AddCommand(newPlayCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "waifu %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// displayVersion returns e.g. "v0.1.0 (abc1234)".
func displayVersion() string {
	v := "v" + appVersion
	if appCommit != "" && appCommit != "none" {
		v += " (" + appCommit + ")"
	}
	return v
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// CLI flags override config values
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	return cfg, nil
}

// verboseOutput reports whether the REPL should show tool traffic.
func verboseOutput(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("verbose") {
		return verboseFlag
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// runtimeEnv is everything a command needs: config, logger, the narrative
// provider, the image pipeline and the session store.
type runtimeEnv struct {
	cfg      *config.Config
	logger   *zap.Logger
	provider provider.Provider
	synth    imagegen.Synthesizer
	store    session.Store

	closers []func()
}

func (e *runtimeEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// newStoreEnv builds the parts that do not need credentials.
func newStoreEnv(ctx context.Context) (*runtimeEnv, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}
	log, flush, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	env := &runtimeEnv{cfg: cfg, logger: log, closers: []func(){flush}}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.store = store
	env.closers = append(env.closers, func() {
		if err := store.Close(); err != nil {
			log.Warn("close session store", zap.Error(err))
		}
	})
	return env, nil
}

// newPlayEnv additionally wires the provider, images and metrics.
func newPlayEnv(ctx context.Context) (*runtimeEnv, error) {
	env, err := newStoreEnv(ctx)
	if err != nil {
		return nil, err
	}
	cfg := env.cfg

	if cfg.Store.LegacyFile != "" {
		n, err := session.LoadLegacyAndMigrate(ctx, env.store, cfg.Store.LegacyFile)
		if err != nil {
			env.logger.Warn("legacy migration failed", zap.String("path", cfg.Store.LegacyFile), zap.Error(err))
		} else if n > 0 {
			env.logger.Info("migrated legacy sessions", zap.Int("count", n))
		}
	}

	p, err := buildProvider(ctx, cfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.provider = p
	env.synth = buildSynthesizer(ctx, cfg, p, env.logger)

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, env.logger)
		env.closers = append(env.closers, stop)
	}
	env.logger.Info("starting",
		zap.String("version", displayVersion()),
		zap.String("provider", p.Name()),
		zap.String("model", p.DefaultModel()),
		zap.String("store", cfg.Store.Backend))
	return env, nil
}

// buildProvider creates a Provider instance based on configuration.
func buildProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)

	apiKey := pc.APIKey
	if apiKey == "" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY",
			name, name,
		)
	}

	// Determine model: CLI flag > config file > provider defaults YAML
	model := cfg.Model
	if pc.Model != "" && model == "" {
		model = pc.Model
	}
	if model == "" {
		if m, ok := config.KnownProviderModels[name]; ok {
			model = m
		}
	}

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(apiKey, pc.BaseURL, model), nil
	case "gemini":
		return provider.NewGeminiProvider(ctx, apiKey, model)
	default:
		// All other providers use OpenAI-compatible API
		baseURL := pc.BaseURL
		if baseURL == "" {
			if u, ok := config.KnownProviderBaseURLs[name]; ok {
				baseURL = u
			} else if name != "openai" {
				return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
			}
		}
		return provider.NewOpenAIProvider(apiKey, baseURL, model), nil
	}
}

// buildSynthesizer assembles the image chain: Gradio first (unless the
// backend is "gemini"), Gemini image models as fallback, a shared rate
// limit, then a prompt cache on top.
func buildSynthesizer(ctx context.Context, cfg *config.Config, p provider.Provider, log *zap.Logger) imagegen.Synthesizer {
	ic := cfg.Image
	var backends []imagegen.Backend
	if ic.Backend != "gemini" && ic.GradioEndpoint != "" {
		backends = append(backends, imagegen.Backend{
			Name:        "gradio",
			Synthesizer: imagegen.NewGradioSynthesizer(ic.GradioEndpoint, ic.Timeout),
		})
	}

	var client *genai.Client
	if gp, ok := p.(*provider.GeminiProvider); ok {
		client = gp.Client()
	} else if key := cfg.GetProviderConfig("gemini").APIKey; key != "" {
		c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
		if err != nil {
			log.Warn("gemini image client unavailable", zap.Error(err))
		} else {
			client = c
		}
	}
	if client != nil {
		backends = append(backends, imagegen.Backend{
			Name:        "gemini",
			Synthesizer: imagegen.NewGeminiSynthesizer(client, ic.GeminiModels, log),
		})
	}
	if len(backends) == 0 {
		log.Warn("no image backend configured; placeholders will be shown")
	}

	var synth imagegen.Synthesizer = imagegen.NewChain(log, ic.RatePerMinute, backends...)
	if ic.CacheTTL > 0 {
		synth = imagegen.NewCached(synth, ic.CacheTTL)
	}
	return synth
}

// buildStore opens the configured session store.
func buildStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	sc := cfg.Store
	switch sc.Backend {
	case "redis":
		if sc.RedisAddr == "" {
			return nil, errors.New("store.redis_addr is required for the redis backend")
		}
		return session.NewRedisStore(ctx, sc.RedisAddr, sc.RedisPassword, sc.RedisDB, sc.RedisPrefix)
	case "", "sqlite":
		return session.NewSQLiteStore(config.DefaultPath(sc.Path, "sessions.db"))
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

// serveMetrics exposes /metrics on addr and returns a shutdown func.
func serveMetrics(addr string, log *zap.Logger) func() {
	metrics.InitMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("metrics listening", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
