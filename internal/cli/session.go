package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/s33g/chatctx/internal/chat"
	"github.com/s33g/chatctx/internal/conversation"
	"github.com/s33g/chatctx/internal/thread"
)

const sessionHelp = `Commands:
  <text>                 prepare a payload for <text> and record it as a user message
  /attach <path>         attach a file to the next message
  /reply <text>          record an assistant reply
  /model <provider/model> switch the thread's model
  /new [title]           start a new thread
  /show                  print the current thread
  /quit                  exit`

type session struct {
	app         *App
	threadID    string
	showPayload bool
	out         io.Writer
	pending     []thread.Attachment // attached to the next message
}

func newSessionCmd(root *rootOptions) *cobra.Command {
	var (
		threadID    string
		showPayload bool
	)

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Interactive thread session with config hot reload",
		Long:  "Reads lines from stdin. Each line is prepared against the thread history and then recorded.\n\n" + sessionHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := root.openApp(ctx)
			if err != nil {
				return err
			}
			app.WatchConfig()

			s := &session{app: app, threadID: threadID, showPayload: showPayload, out: cmd.OutOrStdout()}
			if s.threadID == "" {
				if err := s.newThread(ctx, ""); err != nil {
					return err
				}
			} else if _, err := app.store.Get(ctx, s.threadID); err != nil {
				return err
			}

			return s.run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "resume a stored thread")
	cmd.Flags().BoolVar(&showPayload, "payload", false, "print the full payload for every message")

	return cmd
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		quit, err := s.handle(ctx, line)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (s *session) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, s.send(ctx, line)
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(s.out, sessionHelp)
	case "/new":
		return false, s.newThread(ctx, arg)
	case "/attach":
		if arg == "" {
			return false, errors.New("usage: /attach <path>")
		}
		attachments, err := attachmentsFromFiles([]string{arg})
		if err != nil {
			return false, err
		}
		s.pending = append(s.pending, attachments...)
		fmt.Fprintf(s.out, "attached %s (%d pending)\n", attachments[0].Name, len(s.pending))
	case "/reply":
		if arg == "" {
			return false, errors.New("usage: /reply <text>")
		}
		_, err := s.app.service.Record(ctx, s.threadID, thread.Message{Sender: conversation.SenderAssistant, Content: arg})
		return false, err
	case "/model":
		providerName, modelID, ok := strings.Cut(arg, "/")
		if !ok || providerName == "" || modelID == "" {
			return false, errors.New("usage: /model <provider/model>")
		}
		res, err := s.app.registry.Resolve(providerName, modelID)
		if err != nil {
			return false, err
		}
		// Resolve may hand back the fallback; the thread keeps the catalog entry that was asked for
		p, m, err := s.app.GetConfig().GetModel(providerName, modelID)
		if err != nil {
			return false, err
		}
		if err := s.app.store.UpdateModel(ctx, s.threadID, p.Name, m.ID); err != nil {
			return false, err
		}
		line := fmt.Sprintf("model: %s/%s", p.Name, m.ID)
		if res.UsingFallback {
			line += fmt.Sprintf(" (fallback %s)", res.Ref())
		}
		fmt.Fprintln(s.out, line)
	case "/show":
		return false, s.show(ctx)
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", command)
	}
	return false, nil
}

func (s *session) send(ctx context.Context, content string) error {
	res, err := s.app.service.Prepare(ctx, chat.Request{ThreadID: s.threadID, Content: content, Files: s.pending})
	if err != nil {
		return err
	}

	p := res.Prepared
	if s.showPayload {
		data, err := json.MarshalIndent(p.Payload, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		fmt.Fprintln(s.out, string(data))
	}

	summary := fmt.Sprintf("%s (%s): %d messages, %d/%d tokens",
		res.Resolution.Ref(), p.Payload.Family, p.Payload.Len(), p.Tokens, p.MaxTokens)
	if p.Dropped > 0 {
		summary += fmt.Sprintf(", %d dropped", p.Dropped)
	}
	if p.Truncated {
		summary += ", truncated"
	}
	if res.Resolution.UsingFallback {
		summary += ", fallback"
	}
	if n := len(s.pending); n > 0 {
		summary += fmt.Sprintf(", %d files", n)
	}
	fmt.Fprintln(s.out, summary)

	_, err = s.app.service.Record(ctx, s.threadID, thread.Message{Sender: conversation.SenderUser, Content: content, Files: s.pending})
	if err != nil {
		return err
	}
	s.pending = nil
	return nil
}

func (s *session) newThread(ctx context.Context, title string) error {
	t, err := s.app.service.NewThread(ctx, title)
	if err != nil {
		return err
	}
	s.threadID = t.ID
	s.pending = nil
	fmt.Fprintf(s.out, "thread %s (%s/%s)\n", t.ID, t.Provider, t.Model)
	return nil
}

func (s *session) show(ctx context.Context) error {
	t, err := s.app.store.Get(ctx, s.threadID)
	if err != nil {
		return err
	}
	msgs, err := s.app.store.Messages(ctx, t.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "%s  %s  (%s/%s)\n", t.ID, t.Title, t.Provider, t.Model)
	for _, m := range msgs {
		fmt.Fprintf(s.out, "[%s] %s\n", m.Sender, m.Content)
		for _, f := range m.Files {
			fmt.Fprintf(s.out, "    + %s\n", f.Name)
		}
	}
	return nil
}
