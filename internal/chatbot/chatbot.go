package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"AssistChat/internal/controller"
	"AssistChat/internal/render"
	"AssistChat/internal/session"
	"AssistChat/internal/storage"
)

// Archives lists conversations that were cleared earlier.
type Archives interface {
	Archives() ([]storage.ArchiveSummary, error)
}

// ChatBot is the terminal front end of a conversation
type ChatBot struct {
	ctl      *controller.Controller
	archives Archives
	logger   *slog.Logger
	demo     bool

	in  *bufio.Scanner
	out io.Writer
}

// Options configure a ChatBot
type Options struct {
	In       io.Reader
	Out      io.Writer
	Logger   *slog.Logger
	Archives Archives // nil when the storage keeps no archives
	DemoMode bool
}

// New creates a ChatBot driving ctl
func New(ctl *controller.Controller, opts Options) *ChatBot {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatBot{
		ctl:      ctl,
		archives: opts.Archives,
		logger:   logger,
		demo:     opts.DemoMode,
		in:       bufio.NewScanner(opts.In),
		out:      opts.Out,
	}
}

// Run reads lines until EOF or /quit
func (cb *ChatBot) Run(ctx context.Context) error {
	fmt.Fprintln(cb.out, "=== AI Assistant ===")
	if cb.demo {
		fmt.Fprintln(cb.out, "Running in demo mode (no AI_API_KEY configured)")
	}
	fmt.Fprintln(cb.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(cb.out)

	cb.printHistory()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Fprint(cb.out, "You: ")
		if !cb.in.Scan() {
			break
		}

		input := strings.TrimSpace(cb.in.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(input)
			if err != nil {
				fmt.Fprintf(cb.out, "Error: %v\n", err)
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		fmt.Fprintln(cb.out, "Thinking...")
		if !cb.ctl.Submit(ctx, input) {
			fmt.Fprintln(cb.out, "Still waiting for the previous reply.")
			continue
		}

		msgs := cb.ctl.Messages()
		cb.printMessage(msgs[len(msgs)-1])
		fmt.Fprintln(cb.out)
	}

	if err := cb.in.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Fprintln(cb.out, "Goodbye!")
	return nil
}

// handleCommand handles slash commands and reports whether to quit
func (cb *ChatBot) handleCommand(cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/clear":
		fmt.Fprint(cb.out, "Are you sure you want to clear the chat history? [y/N] ")
		if !cb.in.Scan() {
			return true, nil
		}
		answer := strings.ToLower(strings.TrimSpace(cb.in.Text()))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(cb.out, "Kept chat history.")
			return false, nil
		}
		cb.ctl.Clear()
		cb.printHistory()
		return false, nil

	case "/history":
		cb.printHistory()
		return false, nil

	case "/archives":
		if cb.archives == nil {
			fmt.Fprintln(cb.out, "Archives are not kept by this storage.")
			return false, nil
		}
		list, err := cb.archives.Archives()
		if err != nil {
			return false, fmt.Errorf("failed to list archives: %w", err)
		}
		if len(list) == 0 {
			fmt.Fprintln(cb.out, "No archived conversations.")
			return false, nil
		}
		fmt.Fprintln(cb.out, "\nArchived conversations:")
		for i, a := range list {
			fmt.Fprintf(cb.out, "%d. %s  %s - %s  (%d messages)\n", i+1, a.ID,
				a.StartTime.Local().Format(time.DateTime), a.EndTime.Local().Format(time.DateTime), a.MessageCount)
		}
		fmt.Fprintln(cb.out)
		return false, nil

	case "/help":
		fmt.Fprintln(cb.out, "Available commands:")
		fmt.Fprintln(cb.out, "  /quit, /exit  - Exit the chat")
		fmt.Fprintln(cb.out, "  /clear        - Clear the chat history")
		fmt.Fprintln(cb.out, "  /history      - Show the conversation so far")
		fmt.Fprintln(cb.out, "  /archives     - List cleared conversations")
		fmt.Fprintln(cb.out, "  /help         - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
	}
}

func (cb *ChatBot) printHistory() {
	for _, msg := range cb.ctl.Messages() {
		cb.printMessage(msg)
	}
	fmt.Fprintln(cb.out)
}

func (cb *ChatBot) printMessage(msg session.Message) {
	who := "Assistant"
	if msg.Role == session.RoleUser {
		who = "You"
	}
	fmt.Fprintf(cb.out, "[%s] %s: ", msg.Timestamp.Local().Format("15:04"), who)
	if err := render.Write(cb.out, msg.Content); err != nil {
		cb.logger.Warn("failed to render message", "error", err)
	}
	fmt.Fprintln(cb.out)
}
