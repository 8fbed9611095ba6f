package thread

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/s33g/chatctx/internal/conversation"
)

const fileURLPrefix = "file://"

// FileURL returns the attachment URL for a local path
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return fileURLPrefix + filepath.ToSlash(abs), nil
}

// Path returns the local path of an attachment stored with a file:// URL
func (a Attachment) Path() (string, bool) {
	if !strings.HasPrefix(a.URL, fileURLPrefix) {
		return "", false
	}
	return filepath.FromSlash(strings.TrimPrefix(a.URL, fileURLPrefix)), true
}

// Text extracts the attachment text handed to a model.
// Images are named rather than read; non-UTF-8 files are decoded as Latin-1.
func (a Attachment) Text() (string, error) {
	if a.IsImage() {
		return fmt.Sprintf("[Image file: %s]", a.Name), nil
	}

	path, ok := a.Path()
	if !ok {
		return "", fmt.Errorf("attachment %s is not a local file", a.Name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read attachment %s: %w", a.Name, err)
	}

	text := string(data)
	if !utf8.Valid(data) {
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
		text = string(runes)
	}
	return strings.TrimSpace(text), nil
}

// Files extracts the text of every attachment, in order
func Files(attachments []Attachment) ([]conversation.File, error) {
	if len(attachments) == 0 {
		return nil, nil
	}

	files := make([]conversation.File, 0, len(attachments))
	for _, a := range attachments {
		text, err := a.Text()
		if err != nil {
			return nil, err
		}
		files = append(files, conversation.File{Name: a.Name, Content: text})
	}
	return files, nil
}
