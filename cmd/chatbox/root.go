package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/chatbox/internal/config"
	"github.com/zhouzirui/chatbox/internal/logging"
	"github.com/zhouzirui/chatbox/internal/session"
	"github.com/zhouzirui/chatbox/internal/transport"
	"github.com/zhouzirui/chatbox/internal/ui"
)

type rootFlags struct {
	serverURL  string
	logFile    string
	logLevel   string
	timeLayout string
	markdown   bool
	open       bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "chatbox",
		Short:         "Terminal chat widget for a realtime bot endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyDefaults(cmd, &flags, cfg)
			return run(cmd.Context(), flags, cfg.Client)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.serverURL, "server-url", "", "websocket endpoint (env CHATBOX_SERVER_URL)")
	f.StringVar(&flags.logFile, "log-file", "", "log file path, empty string disables logging (env LOG_FILE)")
	f.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error (env LOG_LEVEL)")
	f.StringVar(&flags.timeLayout, "time-layout", "", "Go time layout for local timestamps (env CHATBOX_TIME_LAYOUT)")
	f.BoolVar(&flags.markdown, "markdown", false, "render bot replies as markdown (env CHATBOX_MARKDOWN)")
	f.BoolVar(&flags.open, "open", false, "start with the chat panel expanded")

	return cmd
}

// applyDefaults fills every flag the user did not set from the environment.
func applyDefaults(cmd *cobra.Command, flags *rootFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if !changed("server-url") {
		flags.serverURL = cfg.Client.ServerURL
	}
	if !changed("log-file") {
		flags.logFile = cfg.Log.File
	}
	if !changed("log-level") {
		flags.logLevel = cfg.Log.Level
	}
	if !changed("time-layout") {
		flags.timeLayout = cfg.Client.TimeLayout
	}
	if !changed("markdown") {
		flags.markdown = cfg.Client.Markdown
	}
}

func run(ctx context.Context, flags rootFlags, clientCfg config.ClientConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, logCloser, err := logging.OpenFile(flags.logFile, flags.logLevel)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	opts := transport.DefaultOptions(flags.serverURL)
	opts.ReconnectDelay = clientCfg.ReconnectDelay
	opts.MaxRetries = clientCfg.MaxRetries
	conn := transport.Dial(ctx, opts, logger)

	sess := session.New(conn,
		session.WithLogger(logger),
		session.WithTimeLayout(flags.timeLayout),
		session.WithOpen(flags.open),
	)
	defer sess.Close()

	logger.Info().Str("url", flags.serverURL).Msg("chatbox started")

	model := ui.New(ctx, sess, ui.Options{
		Markdown: flags.markdown,
		Logger:   logger,
	})
	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx), tea.WithOutput(os.Stdout))
	if _, err := prog.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
