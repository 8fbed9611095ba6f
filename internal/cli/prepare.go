package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/s33g/chatctx/internal/chat"
	"github.com/s33g/chatctx/internal/config"
	"github.com/s33g/chatctx/internal/conversation"
	"github.com/s33g/chatctx/internal/thread"
)

type prepareOptions struct {
	threadID         string
	historyFile      string
	provider         string
	model            string
	systemPromptName string
	systemText       string
	maxTokens        int
	files            []string
}

func newPrepareCmd(root *rootOptions) *cobra.Command {
	opts := &prepareOptions{}

	cmd := &cobra.Command{
		Use:   "prepare <message>",
		Short: "Build the provider payload for a new user message",
		Example: `  chatctx prepare --thread 6f1c... "and in Go?"
  chatctx prepare --history history.json --provider gemini --max-tokens 2000 "summarize"
  chatctx prepare --thread 6f1c... --file notes.txt "what do these notes say?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.threadID == "") == (opts.historyFile == "") {
				return fmt.Errorf("exactly one of --thread or --history is required")
			}

			attachments, err := attachmentsFromFiles(opts.files)
			if err != nil {
				return err
			}

			var prepared *conversation.Prepared
			if opts.historyFile != "" {
				prepared, err = opts.fromFile(root.config, cmd.InOrStdin(), args[0], attachments)
			} else {
				prepared, err = opts.fromThread(cmd, root, args[0], attachments)
			}
			if err != nil {
				return err
			}

			return writePrepared(cmd, prepared)
		},
	}

	cmd.Flags().StringVarP(&opts.threadID, "thread", "t", "", "stored thread ID")
	cmd.Flags().StringVar(&opts.historyFile, "history", "", "JSON history file (- for stdin) instead of a stored thread")
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "provider ID")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "model ID")
	cmd.Flags().StringVarP(&opts.systemPromptName, "system-prompt", "s", "", "named system prompt from config")
	cmd.Flags().StringVar(&opts.systemText, "system", "", "literal system prompt (with --history)")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "token budget override")
	cmd.Flags().StringSliceVarP(&opts.files, "file", "f", nil, "attach a file to the new message (repeatable)")

	return cmd
}

func (o *prepareOptions) fromThread(cmd *cobra.Command, root *rootOptions, message string, files []thread.Attachment) (*conversation.Prepared, error) {
	app, err := root.openApp(cmd.Context())
	if err != nil {
		return nil, err
	}

	res, err := app.service.Prepare(cmd.Context(), chat.Request{
		ThreadID:         o.threadID,
		Content:          message,
		Files:            files,
		Provider:         o.provider,
		Model:            o.model,
		SystemPromptName: o.systemPromptName,
		MaxTokens:        o.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	return res.Prepared, nil
}

func (o *prepareOptions) fromFile(cfg *config.Config, stdin io.Reader, message string, attachments []thread.Attachment) (*conversation.Prepared, error) {
	history, err := readHistory(o.historyFile, stdin)
	if err != nil {
		return nil, err
	}

	files, err := thread.Files(attachments)
	if err != nil {
		return nil, err
	}

	systemPrompt := o.systemText
	switch {
	case systemPrompt != "":
	case o.systemPromptName != "":
		if systemPrompt, err = cfg.GetSystemPromptByName(o.systemPromptName); err != nil {
			return nil, err
		}
	default:
		systemPrompt, _ = cfg.GetDefaultSystemPrompt()
	}

	maxTokens := o.maxTokens
	if maxTokens <= 0 {
		var model *config.Model
		if o.provider != "" && o.model != "" {
			_, model, _ = cfg.GetModel(o.provider, o.model)
		}
		maxTokens = cfg.ContextBudget(model)
	}

	return conversation.Prepare(conversation.Request{
		History:      history,
		UserMessage:  message,
		SystemPrompt: systemPrompt,
		MaxTokens:    maxTokens,
		ProviderID:   o.provider,
		Files:        files,
	})
}

func readHistory(path string, stdin io.Reader) ([]conversation.StoredMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var history []conversation.StoredMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", path, err)
	}
	return history, nil
}

// writePrepared prints the payload to stdout and a budget summary to stderr
func writePrepared(cmd *cobra.Command, p *conversation.Prepared) error {
	data, err := json.MarshalIndent(p.Payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	fmt.Fprintf(cmd.ErrOrStderr(), "%s payload: %d messages, %d/%d tokens, %d dropped",
		p.Payload.Family, p.Payload.Len(), p.Tokens, p.MaxTokens, p.Dropped)
	if p.Truncated {
		fmt.Fprint(cmd.ErrOrStderr(), ", newest message truncated")
	}
	if p.OverBudget() {
		fmt.Fprint(cmd.ErrOrStderr(), ", system prompt over budget")
	}
	fmt.Fprintln(cmd.ErrOrStderr())
	return nil
}
