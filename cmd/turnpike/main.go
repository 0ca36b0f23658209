package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/zen-systems/turnpike/pkg/completion"
	"github.com/zen-systems/turnpike/pkg/config"
	"github.com/zen-systems/turnpike/pkg/finalize"
	"github.com/zen-systems/turnpike/pkg/gate"
	"github.com/zen-systems/turnpike/pkg/logging"
	"github.com/zen-systems/turnpike/pkg/pipeline"
	"github.com/zen-systems/turnpike/pkg/quota"
	"github.com/zen-systems/turnpike/pkg/reflection"
	"github.com/zen-systems/turnpike/pkg/router"
	"github.com/zen-systems/turnpike/pkg/telemetry"
	"github.com/zen-systems/turnpike/pkg/tools"
	"github.com/zen-systems/turnpike/pkg/verify"
)

// Set via -ldflags "-X main.version=… -X main.commit=…".
var (
	version = "dev"
	commit  = "none"
)

var (
	configFile     string
	offlineFlag    bool
	gatePolicyFlag string
	aliases        *config.ModelAliases
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "turnpike",
		Short: "Assistant turn orchestrator with two-tier replies and verified tools",
		Long: `Turnpike runs assistant turns: route an utterance to an intent and tool
	plan, execute and verify the tools, reflect on weak turns, pick the fast
	or quality reply tier, compress tool output into the prompt budget, and
	finalize the reply.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&offlineFlag, "offline", false, "use mock completers (no network calls)")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(replCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func askCmd() *cobra.Command {
	var sessionFlag string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "ask [utterance]",
		Short: "Run one turn and print the reply",
		Long: `Runs a single utterance through the full turn pipeline and prints the
	final reply. Use --json to dump the whole turn result, including the
	routing decision, tool outcomes and the gate's tier choice.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			p, cleanup, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := p.Run(cmd.Context(), pipeline.TurnRequest{
				Utterance: args[0],
				SessionID: sessionFlag,
			})
			if err != nil {
				return err
			}

			if jsonFlag {
				data, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Fprintf(os.Stderr, "route=%s tier=%s verified=%t elapsed=%s\n",
				res.Decision.Route, res.Gate.Tier, res.Outcome.Verified,
				res.Elapsed.Round(time.Millisecond))
			fmt.Println(res.Reply.Text)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "cli", "session id attached to the turn")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full turn result as JSON")
	cmd.Flags().StringVar(&gatePolicyFlag, "gate", "", "gate policy preset (default, economy, quality-first)")

	return cmd
}

func replCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive turn loop",
		Long: `Reads utterances from stdin and runs each through the pipeline. A rolling
	summary of the dialog is fed back into routing and finalization. Type
	"exit" or "quit" to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			p, cleanup, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			session := uuid.New().String()
			var summary string

			fmt.Fprintf(os.Stderr, "turnpike repl, session %s (exit to quit)\n", session)
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Fprint(os.Stderr, "you> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					break
				}

				res, err := p.Run(cmd.Context(), pipeline.TurnRequest{
					Utterance:     line,
					SessionID:     session,
					DialogSummary: summary,
				})
				if err != nil {
					return err
				}

				fmt.Printf("turnpike [%s/%s]> %s\n", res.Decision.Route, res.Gate.Tier, res.Reply.Text)
				summary = rollSummary(summary, line, res.Reply.Text)
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&gatePolicyFlag, "gate", "", "gate policy preset (default, economy, quality-first)")

	return cmd
}

// rollSummary appends the exchange and keeps the tail. Oldest turns fall off
// first; the budget planner trims further if the summary still will not fit.
func rollSummary(summary, utterance, reply string) string {
	const keep = 1200
	s := summary + fmt.Sprintf("User: %s\nAssistant: %s\n", utterance, reply)
	if len(s) > keep {
		s = s[len(s)-keep:]
	}
	return s
}

func modelsCmd() *cobra.Command {
	var resolveFlag bool
	var validateFlag bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List providers, models, and aliases",
		Long: `Lists providers and their known models.

	Use --resolve to show aliases and what they resolve to.
	Use --validate to check both configured tiers against the provider lists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if resolveFlag {
				return showAliases()
			}
			if validateFlag {
				return validateTiers(cfg)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODELS\tSTATUS")

			providers := aliases.ListProviders()
			if len(providers) == 0 {
				providers = []string{"anthropic", "google", "local", "openai"}
			}

			for _, provider := range providers {
				models := formatList(aliases.GetProviderModels(provider))
				status := "no key"
				if cfg.HasProvider(provider) {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", provider, models, status)
			}

			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&resolveFlag, "resolve", false, "show aliases and what they resolve to")
	cmd.Flags().BoolVar(&validateFlag, "validate", false, "check configured tier models against provider lists")

	return cmd
}

func showAliases() error {
	if aliases == nil {
		fmt.Println("No model aliases configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tMODEL\tPROVIDER")

	aliasMap := aliases.ListAliases()
	var aliasNames []string
	for name := range aliasMap {
		aliasNames = append(aliasNames, name)
	}
	sort.Strings(aliasNames)

	for _, alias := range aliasNames {
		model := aliasMap[alias]
		provider := aliases.GetProviderForModel(model)
		fmt.Fprintf(w, "%s\t%s\t%s\n", alias, model, provider)
	}

	return w.Flush()
}

func validateTiers(cfg *config.Config) error {
	if aliases == nil {
		fmt.Println("No model aliases configured - nothing to validate.")
		return nil
	}

	errs := aliases.ValidateTiers(cfg.Tiers)
	if len(errs) == 0 {
		fmt.Println("Both tiers resolve to known models.")
		return nil
	}

	fmt.Fprintf(os.Stderr, "Found %d validation errors:\n", len(errs))
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "  - %s\n", err)
	}
	return fmt.Errorf("validation failed")
}

func statusCmd() *cobra.Command {
	var lastFlag int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tier wiring, quota usage, and recent turns",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIER\tPROVIDER\tMODEL\tWINDOW\tSTATUS")
			printTier(w, "fast", cfg, cfg.Tiers.Fast)
			printTier(w, "quality", cfg, cfg.Tiers.Quality)
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Printf("\ngate: mode=%s auto_threshold=%.2f breaker=%d failures/%s cooldown\n",
				cfg.Gate.Mode, cfg.Gate.AutoThreshold, cfg.Gate.FailureThreshold, cfg.Gate.Cooldown())

			printQuota(cmd.Context(), cfg)
			return printRecentTurns(cmd.Context(), cfg, lastFlag)
		},
	}

	cmd.Flags().IntVar(&lastFlag, "last", 10, "how many recent events to show")

	return cmd
}

func printTier(w *tabwriter.Writer, name string, cfg *config.Config, tier config.TierConfig) {
	status := "no key"
	if cfg.HasProvider(tier.Provider) {
		status = "ready"
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", name, tier.Provider, tier.Model, tier.ContextWindow, status)
}

func printQuota(ctx context.Context, cfg *config.Config) {
	rate := buildQuota(ctx, cfg)
	snap := rate.Snapshot()

	fmt.Printf("quota day: %s calls, %s tokens, %s spend (resets %s)\n",
		usageFraction(snap.Day.Calls, cfg.Quota.Day.Calls),
		usageFraction(snap.Day.Tokens, cfg.Quota.Day.Tokens),
		spendFraction(snap.Day.SpendUSD, cfg.Quota.Day.SpendUSD),
		snap.Day.ResetAt.Format("2006-01-02 15:04 MST"))
	fmt.Printf("quota month: %s calls, %s tokens, %s spend (resets %s)\n",
		usageFraction(snap.Month.Calls, cfg.Quota.Month.Calls),
		usageFraction(snap.Month.Tokens, cfg.Quota.Month.Tokens),
		spendFraction(snap.Month.SpendUSD, cfg.Quota.Month.SpendUSD),
		snap.Month.ResetAt.Format("2006-01-02 15:04 MST"))
	if cfg.Redis.Addr == "" {
		fmt.Println("quota store: in-memory (set redis.addr to persist across restarts)")
	} else {
		fmt.Printf("quota store: redis at %s\n", cfg.Redis.Addr)
	}
}

func usageFraction(used, limit int64) string {
	if limit <= 0 {
		return fmt.Sprintf("%d/unlimited", used)
	}
	return fmt.Sprintf("%d/%d", used, limit)
}

func spendFraction(used, limit float64) string {
	if limit <= 0 {
		return fmt.Sprintf("$%.2f/unlimited", used)
	}
	return fmt.Sprintf("$%.2f/$%.2f", used, limit)
}

func printRecentTurns(ctx context.Context, cfg *config.Config, last int) error {
	if cfg.Telemetry.SQLitePath == "" {
		fmt.Println("telemetry: no sqlite sink configured (set telemetry.sqlite_path)")
		return nil
	}

	sink, err := telemetry.NewSQLiteSink(cfg.Telemetry.SQLitePath)
	if err != nil {
		return fmt.Errorf("open telemetry db: %w", err)
	}
	defer sink.Close()

	events, err := sink.Recent(ctx, last)
	if err != nil {
		return fmt.Errorf("read recent events: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("telemetry: no recorded events yet")
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tTURN\tERROR")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			ev.Timestamp.Format("15:04:05"), ev.Type, shortID(ev.TurnID), ev.Error)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("turnpike %s (commit %s)\n", version, commit)
		},
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	logging.Init(cfg.LogLevel, cfg.LogPretty)

	aliases, err = config.LoadAliasesWithFallback()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: model aliases unavailable: %v\n", err)
		aliases = config.DefaultAliases()
	}
	aliases.ResolveTiers(&cfg.Tiers)

	return cfg, nil
}

// buildPipeline wires every stage from config. The returned cleanup closes
// the telemetry sinks; call it once the last turn has ended.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	registry := demoRegistry()
	runtime := demoRuntime()
	allowEmpty := tools.NewAllowEmpty(cfg.AllowEmptyTools...)

	// Knobs from config, unless a named preset overrides them.
	gateOpts := []gate.Option{
		gate.WithMode(cfg.Gate.Mode),
		gate.WithAutoThreshold(cfg.Gate.AutoThreshold),
		gate.WithLimiter(gate.NewRateLimiter(cfg.Gate.RateLimit, cfg.Gate.RateWindow())),
	}
	if gatePolicyFlag != "" {
		preset, err := gate.NewPolicyRegistry().Get(gatePolicyFlag)
		if err != nil {
			return nil, nil, err
		}
		gateOpts = preset.Options()
	}

	fastC, qualityC, reflectC, finalFastC, err := buildCompleters(cfg)
	if err != nil {
		return nil, nil, err
	}

	sink, closers, err := buildSinks(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: closing telemetry sink: %v\n", err)
			}
		}
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.MetricsEnabled() {
		metrics = telemetry.NewMetrics()
	}

	rate := buildQuota(context.Background(), cfg)

	breaker := gate.NewBreaker(
		gate.WithFailureThreshold(cfg.Gate.FailureThreshold),
		gate.WithCooldown(cfg.Gate.Cooldown()),
		gate.WithOnStateChange(pipeline.BreakerHook(sink, metrics)),
	)
	gateOpts = append(gateOpts,
		gate.WithBreaker(breaker),
		gate.WithBudget(rate),
		gate.WithLogger(logging.For("gate")),
	)
	g := gate.New(gateOpts...)

	rt := router.New(fastC, registry,
		router.WithThreshold(cfg.Router.Threshold),
		router.WithLogger(logging.For("router")))

	retryErrored := cfg.Verify.RetryErrored == nil || *cfg.Verify.RetryErrored
	retryEmpty := cfg.Verify.RetryEmpty == nil || *cfg.Verify.RetryEmpty
	loop := verify.NewLoop(runtime,
		verify.WithAllowEmpty(allowEmpty),
		verify.WithRetryPolicy(verify.RetryPolicy{
			MaxAttempts:  cfg.Verify.MaxAttempts,
			RetryErrored: retryErrored,
			RetryEmpty:   retryEmpty,
		}),
		verify.WithCallTimeout(cfg.Verify.CallTimeout()),
		verify.WithLogger(logging.For("verify")))

	reflector := reflection.New(reflectC,
		reflection.WithThreshold(cfg.Reflection.Threshold),
		reflection.WithCharBudget(cfg.Reflection.CharBudget),
		reflection.WithAllowEmpty(allowEmpty),
		reflection.WithLogger(logging.For("reflection")))

	fin := finalize.New(
		finalize.Tier{Completer: finalFastC, ContextWindow: cfg.Tiers.Fast.ContextWindow},
		finalize.Tier{Completer: qualityC, ContextWindow: cfg.Tiers.Quality.ContextWindow},
		finalize.WithLogger(logging.For("finalize")))

	p, err := pipeline.New(pipeline.Deps{
		Router:    rt,
		Verifier:  loop,
		Reflector: reflector,
		Gate:      g,
		Quota:     rate,
		Finalizer: fin,
		Runtime:   runtime,
		Sink:      sink,
		Metrics:   metrics,
		Log:       logging.For("pipeline"),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}

// buildCompleters returns the completers for routing, quality finalization,
// reflection and fast finalization. With --offline all four are mocks tuned
// so demos still route, call tools, and reply.
func buildCompleters(cfg *config.Config) (fastC, qualityC, reflectC, finalFastC completion.Completer, err error) {
	if offlineFlag {
		fastC = offlineRouterMock()
		qualityC = completion.NewMock("Here's a fuller answer based on what the tools found.")
		reflectC = completion.NewMock(`{"satisfied": true}`)
		finalFastC = completion.NewMock("Done. Anything else?")
		return fastC, qualityC, reflectC, finalFastC, nil
	}

	fastC, err = completerFor(cfg, cfg.Tiers.Fast)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("fast tier: %w", err)
	}
	qualityC, err = completerFor(cfg, cfg.Tiers.Quality)
	if err != nil {
		// A missing remote key degrades the quality tier to the fast
		// completer instead of refusing to start; the gate still meters it.
		fmt.Fprintf(os.Stderr, "Warning: quality tier unavailable (%v), using fast completer\n", err)
		qualityC = fastC
	}
	return fastC, qualityC, fastC, fastC, nil
}

func buildSinks(cfg *config.Config) (telemetry.Sink, []io.Closer, error) {
	sinks := telemetry.MultiSink{telemetry.NewMemorySink(cfg.Telemetry.MemoryCapacity)}
	var closers []io.Closer

	if cfg.Telemetry.Dir != "" {
		fs, err := telemetry.NewFileSink(cfg.Telemetry.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("file sink: %w", err)
		}
		sinks = append(sinks, fs)
		closers = append(closers, fs)
	}
	if cfg.Telemetry.SQLitePath != "" {
		ss, err := telemetry.NewSQLiteSink(cfg.Telemetry.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite sink: %w", err)
		}
		sinks = append(sinks, ss)
		closers = append(closers, ss)
	}
	return sinks, closers, nil
}

func buildQuota(ctx context.Context, cfg *config.Config) *quota.RateBudget {
	var store quota.Store = quota.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = quota.NewRedisStore(client, "turnpike:quota")
	}

	rate := quota.New(
		quota.Limits{Calls: cfg.Quota.Day.Calls, Tokens: cfg.Quota.Day.Tokens, SpendUSD: cfg.Quota.Day.SpendUSD},
		quota.Limits{Calls: cfg.Quota.Month.Calls, Tokens: cfg.Quota.Month.Tokens, SpendUSD: cfg.Quota.Month.SpendUSD},
		quota.WithPricing(quota.Pricing{
			PromptPer1K:     cfg.Quota.Pricing.PromptPer1K,
			CompletionPer1K: cfg.Quota.Pricing.CompletionPer1K,
		}),
		quota.WithStore(store),
		quota.WithLogger(logging.For("quota")),
	)
	if err := rate.Restore(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not restore quota counters: %v\n", err)
	}
	return rate
}

func completerFor(cfg *config.Config, tier config.TierConfig) (completion.Completer, error) {
	switch tier.Provider {
	case "local":
		return completion.NewLocal(tier.BaseURL, tier.Model)
	case "openai":
		key := cfg.KeyFor(tier.Provider)
		if key == "" {
			return nil, fmt.Errorf("no API key for provider %q", tier.Provider)
		}
		return completion.NewOpenAI(key, tier.Model)
	case "anthropic":
		key := cfg.KeyFor(tier.Provider)
		if key == "" {
			return nil, fmt.Errorf("no API key for provider %q", tier.Provider)
		}
		return completion.NewAnthropic(key, tier.Model)
	case "google":
		key := cfg.KeyFor(tier.Provider)
		if key == "" {
			return nil, fmt.Errorf("no API key for provider %q", tier.Provider)
		}
		return completion.NewGoogle(key, tier.Model)
	case "mock":
		return completion.NewMock(""), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", tier.Provider)
	}
}

// offlineRouterMock routes by utterance keyword so --offline demos behave
// like real turns. Keys must not occur in the routing prompt's own text.
func offlineRouterMock() *completion.Mock {
	m := completion.NewMock(`{"route":"smalltalk","intent":"chat","confidence":0.9,"reply":"Happy to help. What do you need?"}`)
	m.Respond("meeting", `{"route":"calendar","intent":"list_events","slots":{"day":"today"},"confidence":0.92,"tools":["calendar.list_events"],"reply":"Checking your calendar."}`)
	m.Respond("inbox", `{"route":"mail","intent":"search","slots":{"query":"unread"},"confidence":0.88,"tools":["mail.search"],"reply":"Searching your mail."}`)
	m.Respond("song", `{"route":"music","intent":"play","slots":{"query":"focus mix"},"confidence":0.85,"tools":["music.play"],"reply":"Starting the music."}`)
	m.Respond("notes", `{"route":"files","intent":"search","slots":{"query":"notes"},"confidence":0.84,"tools":["files.search"],"reply":"Looking for your notes."}`)
	return m
}

// demoRegistry lists the built-in demo tools. Descriptions appear in the
// routing prompt, so they stay short.
func demoRegistry() *tools.Registry {
	return tools.NewRegistry(
		tools.Spec{Name: "calendar.list_events", Description: "List events for a day."},
		tools.Spec{Name: "mail.search", Description: "Find messages matching a query."},
		tools.Spec{Name: "files.search", Description: "Find files by name."},
		tools.Spec{Name: "music.play", Description: "Start playback of a track or mix."},
		tools.Spec{Name: "browser.open", Description: "Open a URL."},
	)
}

// demoRuntime backs the registry with canned handlers so ask and repl work
// end to end without device integrations.
func demoRuntime() *tools.FuncRuntime {
	rt := tools.NewFuncRuntime()
	rt.Handle("calendar.list_events", func(ctx context.Context, params map[string]string) (any, error) {
		if params["day"] == "tomorrow" {
			return []string{}, nil
		}
		return []string{"standup 09:30", "lunch with Sam 12:00", "retro 16:00"}, nil
	})
	rt.Handle("mail.search", func(ctx context.Context, params map[string]string) (any, error) {
		return []string{"Fwd: Q3 planning deck", "Your package has shipped"}, nil
	})
	rt.Handle("files.search", func(ctx context.Context, params map[string]string) (any, error) {
		return []string{"notes/2026-08-standup.md", "notes/roadmap.md"}, nil
	})
	rt.Handle("music.play", func(ctx context.Context, params map[string]string) (any, error) {
		query := params["query"]
		if query == "" {
			query = "something you like"
		}
		return map[string]string{"status": "playing", "item": query}, nil
	})
	rt.Handle("browser.open", func(ctx context.Context, params map[string]string) (any, error) {
		url := params["url"]
		if url == "" {
			return nil, fmt.Errorf("browser.open needs a url")
		}
		return map[string]string{"status": "opened", "url": url}, nil
	})
	return rt
}

func formatList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	result := items[0]
	for i := 1; i < len(items); i++ {
		result += ", " + items[i]
	}
	return result
}
