package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/BTreeMap/PromptForge/internal/api"
	"github.com/BTreeMap/PromptForge/internal/flow"
	"github.com/BTreeMap/PromptForge/internal/genai"
	"github.com/BTreeMap/PromptForge/internal/lockfile"
	"github.com/BTreeMap/PromptForge/internal/messaging"
	"github.com/BTreeMap/PromptForge/internal/models"
	"github.com/BTreeMap/PromptForge/internal/persona"
	"github.com/BTreeMap/PromptForge/internal/scheduler"
	"github.com/BTreeMap/PromptForge/internal/store"
	"github.com/BTreeMap/PromptForge/internal/templates"
	"github.com/BTreeMap/PromptForge/internal/twiliowhatsapp"
	"github.com/BTreeMap/PromptForge/internal/whatsapp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// newRootCmd builds the command tree. Running the root command serves.
func newRootCmd() *cobra.Command {
	cfg := loadEnvironmentConfig()
	envStateDir := cfg.StateDir

	root := &cobra.Command{
		Use:   "PromptForge",
		Short: "Turn rough requests into structured prompts through short questionnaires",
		Long: `PromptForge selects a questionnaire template for a request, asks its questions one
at a time, synthesizes an enhanced prompt from the answers and sends it to a language model.
It serves an HTTP chat API and can bridge WhatsApp (direct or through Twilio).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLogLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			initializeLogger(level)
			cfg.reconcile(cmd, envStateDir)
			return nil
		},
	}
	cfg.bindFlags(root)

	serve := newServeCmd(&cfg)
	root.RunE = serve.RunE
	cfg.bindServeFlags(root)
	root.AddCommand(serve, newTemplatesCmd(&cfg), newAskCmd(&cfg))
	return root
}

func newServeCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the configured messaging channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *cfg)
		},
	}
	cfg.bindServeFlags(cmd)
	return cmd
}

// runServe locks the state directory and runs every component until ctx ends or one fails.
func runServe(ctx context.Context, cfg Config) error {
	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	slog.Info("Bootstrapping PromptForge", "state_dir", cfg.StateDir, "provider", cfg.provider(), "templates_dir", cfg.TemplatesDir)
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	apiOpts := []api.Option{api.WithTemplateLoader(a.loader)}
	if cfg.APIAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(cfg.APIAddr))
	}

	if cfg.twilioEnabled() {
		client, err := twiliowhatsapp.NewClient(cfg.buildTwilioOptions()...)
		if err != nil {
			return fmt.Errorf("create Twilio client: %w", err)
		}
		var twOpts []messaging.TwilioOption
		if cfg.TwilioWebhookURL != "" {
			twOpts = append(twOpts, messaging.WithWebhookURL(cfg.TwilioWebhookURL))
		}
		svc := messaging.NewTwilioService(client, twOpts...)
		apiOpts = append(apiOpts, api.WithTwilioWebhook(svc.WebhookHandler))
		handler := messaging.NewResponseHandler(svc, a.chat)
		g.Go(func() error { return handler.Run(gctx) })
		slog.Info("runServe: Twilio channel enabled")
	}

	if cfg.WhatsAppEnabled {
		client, err := whatsapp.NewClient(gctx, cfg.buildWhatsAppOptions()...)
		if err != nil {
			return fmt.Errorf("create WhatsApp client: %w", err)
		}
		defer client.Disconnect()
		handler := messaging.NewResponseHandler(messaging.NewWhatsAppService(client), a.chat)
		g.Go(func() error { return handler.Run(gctx) })
		slog.Info("runServe: WhatsApp channel enabled")
	}

	if cfg.WatchTemplates {
		watcher := templates.NewWatcher(a.loader, a.templates)
		g.Go(func() error { return watcher.Run(gctx) })
	}

	if cfg.ConversationRetention > 0 {
		sched := scheduler.NewScheduler()
		if err := sched.AddJob(cfg.RetentionSchedule, scheduler.RetentionJob(a.convs, cfg.ConversationRetention, nil)); err != nil {
			return err
		}
		g.Go(func() error { return sched.Run(gctx) })
		slog.Info("runServe: conversation retention enabled", "retention", cfg.ConversationRetention, "schedule", cfg.RetentionSchedule)
	}

	server := api.NewServer(a.chat, a.templates, a.store, apiOpts...)
	g.Go(func() error { return server.Run(gctx) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("PromptForge failed to run", "error", err)
		return err
	}
	slog.Info("PromptForge exited successfully")
	return nil
}

func newTemplatesCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the built-in and custom questionnaire templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl := templates.NewDefaultStore()
			if _, err := templates.NewOsLoader(cfg.TemplatesDir).LoadInto(tmpl); err != nil {
				return err
			}
			return printTemplates(cmd.OutOrStdout(), tmpl.List())
		},
	}
}

func printTemplates(out io.Writer, list []models.Template) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQUESTIONS\tKEYWORDS")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.ID, t.Name, len(t.Questions), strings.Join(t.Keywords, ","))
	}
	return tw.Flush()
}

func newAskCmd(cfg *Config) *cobra.Command {
	var (
		templateID string
		personaID  string
		send       bool
	)
	cmd := &cobra.Command{
		Use:   "ask <request>",
		Short: "Answer a questionnaire in the terminal and print the enhanced prompt",
		Long: `ask picks a template for the request (or uses --template), asks each question on
stdout and reads the answers from stdin, one line each. An empty line skips a question.
With --send the enhanced prompt is also sent to the configured model.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newAppWithStore(*cfg, store.NewInMemoryStore())
			if err != nil {
				return err
			}
			var llm genai.Client
			if send {
				llm = a.llm
			}
			return runAsk(cmd.Context(), askParams{
				engine:     a.chat.Engine(),
				llm:        llm,
				request:    strings.Join(args, " "),
				templateID: templateID,
				personaID:  personaID,
				in:         cmd.InOrStdin(),
				out:        cmd.OutOrStdout(),
			})
		},
	}
	cmd.Flags().StringVar(&templateID, "template", "", "template id to use instead of keyword selection")
	cmd.Flags().StringVar(&personaID, "persona", persona.DefaultID, "persona whose system instruction is sent with --send")
	cmd.Flags().BoolVar(&send, "send", false, "send the enhanced prompt to the model and print the reply")
	return cmd
}

type askParams struct {
	engine     *flow.Engine
	llm        genai.Client // nil prints the prompt only
	request    string
	templateID string
	personaID  string
	in         io.Reader
	out        io.Writer
}

// runAsk walks one questionnaire over in/out. Answers missing at EOF are left blank.
func runAsk(ctx context.Context, p askParams) error {
	conv := models.NewConversation(flow.NewConversationID(), "cli", p.personaID)
	id := p.templateID
	if id == "" {
		id = p.engine.Select(p.request)
	}
	if _, ok := p.engine.Templates().Get(id); !ok {
		return fmt.Errorf("%w: %s", models.ErrTemplateNotFound, id)
	}
	if err := p.engine.Start(conv, id, p.request); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Using template %q.\n\n", id)

	scanner := bufio.NewScanner(p.in)
	for {
		fmt.Fprintf(p.out, "%s\n> ", p.engine.CurrentQuestion(conv))
		answer := ""
		if scanner.Scan() {
			answer = scanner.Text()
		}
		fmt.Fprintln(p.out)
		p.engine.StoreAnswer(conv, answer)
		if !p.engine.HasNext(conv) {
			break
		}
		p.engine.Advance(conv)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read answers: %w", err)
	}

	prompt := p.engine.Synthesize(conv)
	p.engine.Complete(conv)
	fmt.Fprintf(p.out, "Enhanced prompt:\n\n%s\n", prompt)

	if p.llm == nil {
		return nil
	}
	reply, err := p.llm.GenerateResponse(ctx, persona.SystemInstruction(p.personaID), prompt)
	if err != nil {
		return fmt.Errorf("generate response: %w", err)
	}
	fmt.Fprintf(p.out, "\nResponse:\n\n%s\n", reply)
	return nil
}
