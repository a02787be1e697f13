package cmd

import (
	"fmt"
	"log/slog"

	"github.com/samsaffron/tonenotes/internal/config"
	"github.com/samsaffron/tonenotes/internal/diagnostics"
	"github.com/samsaffron/tonenotes/internal/llm"
	"github.com/samsaffron/tonenotes/internal/notes"
	"github.com/samsaffron/tonenotes/internal/rewrite"
)

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// applyProviderOverrides applies a --provider value such as "anthropic" or
// "openai:gpt-4.1".
func applyProviderOverrides(cfg *config.Config, providerFlag string) error {
	if providerFlag == "" {
		return nil
	}
	provider, model, err := llm.ParseProviderModel(providerFlag)
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(provider, model)
	return nil
}

// rewriteClientOptions selects the backend of a rewrite client.
type rewriteClientOptions struct {
	Remote string // base URL of a tonenotes server; empty uses the language model
	Token  string
	Legacy bool
	Debug  bool
}

func newRewriteClient(cfg *config.Config, opts rewriteClientOptions) (rewrite.Client, error) {
	if opts.Remote != "" {
		c := rewrite.NewHTTPClient(opts.Remote, opts.Token)
		c.Legacy = opts.Legacy
		slog.Debug("using remote rewrite service", "url", c.URL, "legacy", c.Legacy)
		return c, nil
	}
	if opts.Legacy {
		return nil, fmt.Errorf("--legacy requires --remote")
	}
	provider, err := llm.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	c := rewrite.NewLLMClient(provider)
	c.MaxTokens = cfg.Rewrite.MaxTokens
	c.Temperature = float32(cfg.Rewrite.Temperature)
	c.Debug = opts.Debug
	slog.Debug("using language model", "provider", provider.Name(), "model", cfg.ActiveModel())
	return c, nil
}

func openNoteStore(cfg *config.Config) (notes.Store, error) {
	store, err := notes.NewStore(cfg.Notes.Enabled, cfg.GetNotesPath())
	if err != nil {
		return nil, fmt.Errorf("open notes: %w", err)
	}
	return store, nil
}

// newDiagnostics returns nil when diagnostics are disabled. A nil recorder
// ignores records.
func newDiagnostics(cfg *config.Config) *diagnostics.Recorder {
	if !cfg.Diagnostics.Enabled {
		return nil
	}
	return diagnostics.NewRecorder(cfg.GetDiagnosticsDir())
}
