// Command PromptForge serves the prompt-enhancement chat API and its messaging channels.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BTreeMap/PromptForge/internal/flow"
	"github.com/BTreeMap/PromptForge/internal/genai"
	"github.com/BTreeMap/PromptForge/internal/store"
	"github.com/BTreeMap/PromptForge/internal/templates"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the components shared by the serve and ask commands.
type app struct {
	store     store.Store
	templates *templates.Store
	loader    *templates.Loader
	chat      *flow.ChatFlow
	convs     *flow.ConversationManager
	llm       genai.Client
}

// loadTemplates builds the catalog: built-ins, then the templates directory, then
// definitions registered over the API and kept in st. Earlier sources win on id clashes.
func loadTemplates(cfg Config, st store.Store) (*templates.Store, *templates.Loader, error) {
	tmpl := templates.NewDefaultStore()
	loader := templates.NewOsLoader(cfg.TemplatesDir)
	if err := loader.SeedDefaults(); err != nil {
		slog.Warn("loadTemplates: failed to seed built-in templates", "error", err, "dir", cfg.TemplatesDir)
	}
	n, err := loader.LoadInto(tmpl)
	if err != nil {
		return nil, nil, fmt.Errorf("load templates from %s: %w", cfg.TemplatesDir, err)
	}
	slog.Debug("loadTemplates: directory loaded", "dir", cfg.TemplatesDir, "registered", n)

	if st != nil {
		stored, err := st.ListTemplates()
		if err != nil {
			return nil, nil, fmt.Errorf("list stored templates: %w", err)
		}
		for _, t := range stored {
			if !tmpl.Register(t) {
				slog.Debug("loadTemplates: stored template shadowed", "templateID", t.ID)
			}
		}
	}
	slog.Info("loadTemplates: catalog ready", "templates", tmpl.Len())
	return tmpl, loader, nil
}

// newApp opens the store and wires the chat flow.
func newApp(cfg Config) (*app, error) {
	if err := cfg.ensureDirectoriesExist(); err != nil {
		return nil, err
	}
	st, err := store.New(cfg.buildStoreOptions()...)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a, err := newAppWithStore(cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func newAppWithStore(cfg Config, st store.Store) (*app, error) {
	tmpl, loader, err := loadTemplates(cfg, st)
	if err != nil {
		return nil, err
	}
	llm, err := genai.NewClient(cfg.buildGenAIOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.provider(), err)
	}
	cm, err := flow.NewConversationManager(st, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &app{
		store:     st,
		templates: tmpl,
		loader:    loader,
		chat:      flow.NewChatFlow(flow.NewEngine(tmpl), cm, llm),
		convs:     cm,
		llm:       llm,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("app.Close: failed to close store", "error", err)
	}
}
