// Command triage reads unread and starred mail, asks a reasoning backend
// which messages need action, and shows the result grouped by urgency.
//
// Usage:
//
//	triage                  Run the pipeline and open the TUI
//	triage --plain          Print the result to stdout instead
//	triage --stats          Show cache statistics
//	triage --clear-cache    Forget every analysis result
//	triage events           JSONL event log viewer
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/abelbrown/triage/internal/analysis"
	"github.com/abelbrown/triage/internal/brain"
	"github.com/abelbrown/triage/internal/config"
	"github.com/abelbrown/triage/internal/coord"
	"github.com/abelbrown/triage/internal/logging"
	"github.com/abelbrown/triage/internal/mail"
	"github.com/abelbrown/triage/internal/otel"
	"github.com/abelbrown/triage/internal/store"
	"github.com/abelbrown/triage/internal/tracker"
	"github.com/abelbrown/triage/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"
)

const version = "0.3.0"

type options struct {
	configPath string
	refresh    bool
	clearCache bool
	stats      bool
	plain      bool
	backlog    bool
	noTracker  bool
	preferAPI  bool
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "events" {
		os.Exit(runEvents(os.Args[2:]))
	}

	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Config file (default ~/.triage/config.json)")
	flag.BoolVar(&opts.refresh, "refresh", false, "Run the pipeline after --clear-cache")
	flag.BoolVar(&opts.clearCache, "clear-cache", false, "Delete every cached analysis result")
	flag.BoolVar(&opts.stats, "stats", false, "Print cache statistics and exit")
	flag.BoolVar(&opts.plain, "plain", false, "Print results to stdout instead of opening the TUI")
	flag.BoolVar(&opts.backlog, "backlog", false, "Include the backlog in --plain output")
	flag.BoolVar(&opts.noTracker, "no-tracker", false, "Do not read or write the task tracker")
	flag.BoolVar(&opts.preferAPI, "prefer-api", false, "Try metered APIs before the local CLI")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "triage: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	if err := logging.Init(cfg.DataDir, version); err != nil {
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
	}
	defer logging.Close()

	events := otel.NewNullLogger()
	if f, err := os.OpenFile(cfg.EventsPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
		defer f.Close()
		events = otel.NewLogger(f)
	} else {
		logging.Warn("event log disabled", "error", err)
	}
	defer events.Close()
	events.Info(otel.KindStartup, "main", "triage "+version)
	defer events.Info(otel.KindShutdown, "main", "")

	st, err := store.Open(cfg.CachePath())
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer st.Close()

	if opts.stats {
		return printStats(st)
	}
	if opts.clearCache {
		if err := st.Clear(); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Println("Cache cleared.")
		if !opts.refresh {
			return nil
		}
	}

	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no mail accounts configured in %s", config.ConfigPath())
	}

	backend := buildAdapter(cfg, !opts.preferAPI && cfg.Analysis.PreferLocal)
	if !backend.Available() {
		logging.Warn("no reasoning backend available; analysis will fail")
	}

	tokens := make(map[string]string, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		tokens[a.Name] = a.TokenFile
	}
	mailer := mail.NewGmailClient(mail.GmailConfig{
		CredentialsFile: cfg.Mail.CredentialsFile,
		Tokens:          tokens,
		Query:           cfg.Mail.Query,
		MaxResults:      cfg.Mail.MaxResults,
	})

	var tr tracker.Tracker
	if cfg.Tracker.Enabled && !opts.noTracker {
		rc := tracker.NewRemindersCLI(cfg.Tracker.Command, time.Duration(cfg.Tracker.TimeoutSeconds)*time.Second)
		if rc.Available() {
			tr = rc
		} else {
			logging.Warn("tracker command not found, running without tracker", "command", cfg.Tracker.Command)
		}
	}

	c := coord.New(coord.Deps{
		Store:       st,
		Mail:        mailer,
		Accounts:    mailer.Accounts(),
		Analyzer:    analysis.New(st, backend, analysis.WithBatchSize(cfg.Analysis.BatchSize), analysis.WithEvents(events)),
		Tracker:     tr,
		TrackerList: cfg.Tracker.List,
		Staleness:   cfg.Analysis.Staleness(),
		Events:      events,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.plain {
		return runPlain(ctx, c, opts.backlog || cfg.UI.ShowBacklog)
	}

	program := tea.NewProgram(ui.NewApp(ctx, c, cfg.UI.ShowBacklog), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}

// buildAdapter assembles the local CLI path and every configured metered API.
func buildAdapter(cfg *config.Config, preferLocal bool) *brain.Adapter {
	cli := brain.DefaultCLIConfig()
	if cfg.Analysis.CLI.Command != "" {
		cli.Command = cfg.Analysis.CLI.Command
		cli.Args = cfg.Analysis.CLI.Args
	}
	if cfg.Analysis.CLI.TimeoutSeconds > 0 {
		cli.Timeout = time.Duration(cfg.Analysis.CLI.TimeoutSeconds) * time.Second
	}
	if cfg.Analysis.CLI.Retries >= 0 {
		cli.Retries = cfg.Analysis.CLI.Retries
	}
	if cfg.Analysis.CLI.BackoffSeconds > 0 {
		cli.Backoff = time.Duration(cfg.Analysis.CLI.BackoffSeconds) * time.Second
	}

	type metered struct {
		priority int
		provider brain.Provider
	}
	var apis []metered
	m := cfg.Models
	if m.Claude.Enabled && m.Claude.APIKey != "" {
		apis = append(apis, metered{m.Claude.Priority, brain.NewHTTPProvider(brain.AnthropicConfig(m.Claude.APIKey, m.Claude.Model))})
	}
	if m.OpenAI.Enabled && m.OpenAI.APIKey != "" {
		apis = append(apis, metered{m.OpenAI.Priority, brain.NewHTTPProvider(brain.OpenAIConfig(m.OpenAI.APIKey, m.OpenAI.Model))})
	}
	if m.Gemini.Enabled && m.Gemini.APIKey != "" {
		apis = append(apis, metered{m.Gemini.Priority, brain.NewGeminiProvider(m.Gemini.APIKey, m.Gemini.Model)})
	}
	sort.SliceStable(apis, func(i, j int) bool { return apis[i].priority < apis[j].priority })

	providers := []brain.Provider{brain.NewCLIProvider(cli)}
	for _, a := range apis {
		providers = append(providers, a.provider)
	}
	logging.Info("reasoning backends", "prefer_local", preferLocal, "metered", cfg.GetEnabledModels())
	return brain.NewAdapter(preferLocal, providers...)
}

func runPlain(ctx context.Context, c *coord.Coordinator, backlog bool) error {
	rep, err := c.Run(ctx, func(p analysis.Progress) {
		fmt.Fprintf(os.Stderr, "analyzing batch %d/%d (%d cached, %d pending)\n", p.Batch, p.Batches, p.Cached, p.Pending)
	})
	if err != nil {
		return err
	}
	return ui.RenderPlain(os.Stdout, rep, backlog)
}

func printStats(st *store.Store) error {
	s, err := st.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Cached results:  %d\n", s.TotalEntries)
	fmt.Printf("Actionable:      %d\n", s.ActionableCount)
	if !s.OldestTimestamp.IsZero() {
		fmt.Printf("Oldest analysis: %s (%s ago)\n", s.OldestTimestamp.Local().Format("2006-01-02 15:04"),
			time.Since(s.OldestTimestamp).Round(time.Minute))
	}
	return nil
}
