package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/s33g/chatctx/internal/conversation"
	"github.com/s33g/chatctx/internal/thread"
)

func newRecordCmd(root *rootOptions) *cobra.Command {
	var (
		threadID string
		sender   string
		files    []string
	)

	cmd := &cobra.Command{
		Use:   "record <message>",
		Short: "Append a message to a stored thread",
		Example: `  chatctx record --thread 6f1c... "What is a goroutine?"
  chatctx record --thread 6f1c... --sender assistant "A lightweight thread."`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attachments, err := attachmentsFromFiles(files)
			if err != nil {
				return err
			}

			app, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}

			msg, err := app.service.Record(cmd.Context(), threadID, thread.Message{
				Sender:  conversation.Sender(sender),
				Content: args[0],
				Files:   attachments,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "stored thread ID")
	cmd.Flags().StringVar(&sender, "sender", string(conversation.SenderUser), "user or assistant")
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "attach a file (repeatable)")
	cmd.MarkFlagRequired("thread")

	return cmd
}

func attachmentsFromFiles(paths []string) ([]thread.Attachment, error) {
	var attachments []thread.Attachment
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("failed to attach %s: is a directory", p)
		}

		mimeType := mime.TypeByExtension(filepath.Ext(p))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		url, err := thread.FileURL(p)
		if err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", p, err)
		}

		a := thread.Attachment{
			Name: filepath.Base(p),
			Type: mimeType,
			Size: info.Size(),
			URL:  url,
		}
		if a.IsImage() {
			a.Preview = a.URL
		}
		attachments = append(attachments, a)
	}
	return attachments, nil
}
