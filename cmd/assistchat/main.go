package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"AssistChat/internal/chatbot"
	"AssistChat/internal/server"
)

var (
	dbPath     string
	logDir     string
	staticDir  string
	listenAddr string
	debug      bool
	memoryOnly bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "assistchat",
		Short: "AI coding assistant chat",
		Long:  "assistchat keeps one persistent conversation with an OpenAI-compatible chat API, or a demo responder when no API key is set.",
		// Running assistchat with no subcommand starts the terminal chat.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default $CHAT_DB_PATH or assistchat.db)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for logs, traces and metrics (default $CHAT_LOG_DIR or logs)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&memoryOnly, "memory", false, "keep the conversation in memory only")

	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the frontend and the chat API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (default $PORT or :3000)")
	cmd.Flags().StringVar(&staticDir, "static", "", "frontend directory (default $STATIC_DIR or frontend)")
	return cmd
}

// runChat leaves SIGINT alone: the scanner blocks on stdin and history is
// already persisted after every change.
func runChat(cmd *cobra.Command) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := chatbot.Options{
		In:       os.Stdin,
		Out:      os.Stdout,
		Logger:   a.logger,
		DemoMode: a.client.DemoMode(),
	}
	if a.db != nil {
		opts.Archives = a.db
	}
	return chatbot.New(a.ctl, opts).Run(ctx)
}

func runServe(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.ctl, a.cfg.Server.StaticDir, a.logger)

	fmt.Printf("Server running on %s\n", a.cfg.Server.Addr)
	a.logger.Info("server listening", "addr", a.cfg.Server.Addr, "static_dir", a.cfg.Server.StaticDir, "demo_mode", a.client.DemoMode())
	return server.Run(ctx, a.cfg.Server.Addr, srv.Router())
}

