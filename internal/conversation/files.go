package conversation

import (
	"fmt"
	"strings"
)

// File is the extracted text of an attachment sent with the new user turn
type File struct {
	Name    string
	Content string
}

// FileText lays out attachment text for a provider family. The default family
// gets a "--- File: name ---" header per file, Gemini a "Content from name:" lead-in.
func FileText(files []File, family Family) string {
	if len(files) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(files))
	for _, f := range files {
		if family == FamilyGemini {
			blocks = append(blocks, fmt.Sprintf("Content from %s:\n%s", f.Name, f.Content))
		} else {
			blocks = append(blocks, fmt.Sprintf("--- File: %s ---\n%s", f.Name, f.Content))
		}
	}
	return strings.Join(blocks, "\n\n")
}

// attachFiles adds file text to the last message, the user turn being sent
func attachFiles(messages []Message, files []File, family Family) {
	text := FileText(files, family)
	if text == "" || len(messages) == 0 {
		return
	}

	last := &messages[len(messages)-1]
	if family == FamilyGemini {
		last.FileText = text
		return
	}
	last.Content = joinText(last.Content, text)
}

func joinText(content, fileText string) string {
	switch {
	case fileText == "":
		return content
	case content == "":
		return fileText
	default:
		return content + "\n\n" + fileText
	}
}
