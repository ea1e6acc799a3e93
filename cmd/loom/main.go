package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"loom/internal/assistant"
	"loom/internal/config"
	"loom/internal/llm"
	"loom/internal/llm/anthropic"
	"loom/internal/logx"
	"loom/internal/session"
	"loom/internal/tools"
	"loom/internal/toolui/surface"
	"loom/internal/tui"
)

const (
	version          = "v0.1.0"
	defaultMaxTokens = 4096
)

const defaultSystemPrompt = `You are the assistant of a small garment workshop. You answer questions about orders, customers, piece-work and payroll.
Show tabular data with show_table and key figures with show_stats instead of writing them out as text.
Before any payment, deletion or other change that cannot be undone, call request_approval and act only on the returned action id.`

var errUnsupportedProvider = errors.New("unsupported provider")

var timeNow = time.Now

func main() {
	if err := execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "loom: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		resume     string
	)

	cmd := &cobra.Command{
		Use:           "loom",
		Short:         "loom is a workshop assistant that answers with tables, stats and approvals",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{Path: strings.TrimSpace(configPath)})
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, closer, err := logx.Open(cfg.Log.File, cfg.Log.Level)
			if err != nil {
				return err
			}
			defer closer.Close()
			ctx := logx.ContextWithLogger(cmd.Context(), log)
			return runTUI(ctx, cfg, strings.TrimSpace(resume))
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.Flags().StringVar(&resume, "resume", "", `Session id to continue, or "latest"`)
	cmd.AddCommand(newRenderCmd(), newSchemaCmd(), newReplayCmd(&configPath))
	return cmd
}

func runTUI(ctx context.Context, cfg config.Config, resume string) error {
	log := logx.Ctx(ctx)

	provider, model, err := buildProviderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	store, err := session.NewStore(cfg.Session.Dir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	sessionID, transcript, err := resolveSession(ctx, store, resume)
	if err != nil {
		return err
	}
	recorder, err := session.OpenRecorder(ctx, store, sessionID)
	if err != nil {
		return fmt.Errorf("open session %s: %w", sessionID, err)
	}

	// Surfaces change from tool goroutines, timers and Update itself, so
	// the message is posted without blocking the caller.
	var program atomic.Pointer[tea.Program]
	notify := func(id string) {
		if p := program.Load(); p != nil {
			go p.Send(tui.SurfaceChangedMsg{ID: id})
		}
	}

	opts, err := hostOptions(cfg)
	if err != nil {
		return err
	}
	host := surface.NewHost(append(opts,
		surface.WithJournal(recorder),
		surface.OnChange(notify),
		surface.OnRenderFailure(func(name string, err error) {
			log.Warn("tool-ui render failed", "component", name, "err", err)
		}),
	)...)
	if err := session.Replay(ctx, transcript, host); err != nil {
		log.Warn("session replay incomplete", "session", sessionID, "err", err)
	}

	registry, err := buildToolRegistry(host)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}
	settings, err := cfg.AnthropicSettings()
	if err != nil {
		return err
	}
	system := strings.TrimSpace(cfg.Agent.SystemPrompt)
	if system == "" {
		system = defaultSystemPrompt
	}
	asst, err := assistant.New(assistant.Config{
		Provider:  provider,
		Tools:     registry,
		Model:     model,
		System:    system,
		MaxTokens: defaultMaxTokens,
		MaxTurns:  cfg.Agent.MaxTurns,
		Retry: llm.RetryPolicy{
			MaxRetries: settings.Retry.MaxRetries,
			BaseDelay:  settings.Retry.BaseDelay,
			MaxDelay:   settings.Retry.MaxDelay,
		},
	})
	if err != nil {
		return fmt.Errorf("create assistant: %w", err)
	}
	if err := asst.Restore(session.History(transcript)); err != nil {
		return fmt.Errorf("restore session %s: %w", sessionID, err)
	}
	if len(transcript) == 0 {
		if err := recorder.RecordMeta(ctx, map[string]any{"version": version, "model": model}); err != nil {
			return fmt.Errorf("start session %s: %w", sessionID, err)
		}
	}

	app := tui.NewApp(tui.Config{
		Context:       ctx,
		Version:       version,
		ModelName:     model,
		SessionID:     sessionID,
		ThemeName:     cfg.TUI.Theme,
		ShowInspector: cfg.TUI.ShowInspector,
		Assistant:     asst,
		Host:          host,
		Recorder:      recorder,
		Sessions:      store,
		Transcript:    transcript,
	})

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	program.Store(p)
	log.Info("loom started", "session", sessionID, "model", model, "resumed", len(transcript) > 0)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

// resolveSession picks the transcript to continue. An empty resume starts a
// new session.
func resolveSession(ctx context.Context, store *session.Store, resume string) (string, []session.Entry, error) {
	if resume == "" {
		return session.NewID(timeNow()), nil, nil
	}
	id := resume
	if id == "latest" {
		latest, err := store.Latest(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("find latest session: %w", err)
		}
		id = latest
	}
	entries, err := store.Load(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return id, entries, nil
}

func hostOptions(cfg config.Config) ([]surface.Option, error) {
	ui, err := cfg.ToolUISettings()
	if err != nil {
		return nil, err
	}
	return []surface.Option{
		surface.WithLocale(ui.Locale),
		surface.WithConfirmTimeout(ui.ConfirmTimeout),
		surface.WithBreakpoint(ui.CardBreakpoint),
		surface.WithMaxVisible(ui.MaxVisible),
		surface.WithHyperlinks(cfg.TUI.Hyperlinks),
	}, nil
}

func buildProviderFromConfig(cfg config.Config) (llm.Provider, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider.Default)) {
	case "", "anthropic":
		settings, err := cfg.AnthropicSettings()
		if err != nil {
			return nil, "", fmt.Errorf("resolve anthropic settings: %w", err)
		}
		if strings.TrimSpace(settings.APIKey) == "" {
			return nil, "", llm.ErrMissingAPIKey
		}

		provider := anthropic.New(anthropic.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Version: settings.Version,
			Retry: llm.RetryPolicy{
				MaxRetries: settings.Retry.MaxRetries,
				BaseDelay:  settings.Retry.BaseDelay,
				MaxDelay:   settings.Retry.MaxDelay,
			},
		})
		return provider, settings.Model, nil
	default:
		return nil, "", fmt.Errorf("%w: %s", errUnsupportedProvider, cfg.Provider.Default)
	}
}

func buildToolRegistry(host tools.Surfaces) (*tools.Registry, error) {
	list, err := tools.SurfaceTools(host)
	if err != nil {
		return nil, err
	}
	registry, err := tools.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, tool := range list {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("register %s: %w", tool.Name(), err)
		}
	}
	return registry, nil
}
