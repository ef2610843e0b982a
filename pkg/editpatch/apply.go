package editpatch

import (
	"strings"
	"unicode/utf8"
)

// ApplyEdits overwrites lines of original with edits, padding the document with
// empty lines when an edit points past its end (never beyond MaxLineNumber).
// The original is required: an edit against nothing has no meaning.
func (e *Engine) ApplyEdits(original string, edits []LineEdit) (string, error) {
	if original == "" {
		return "", ErrEmptyOriginal
	}

	lines := strings.Split(original, "\n")

	target := len(lines)
	for _, edit := range edits {
		if edit.LineNumber > target {
			target = edit.LineNumber
		}
	}
	if target > MaxLineNumber {
		target = MaxLineNumber
	}

	for len(lines) < target {
		lines = append(lines, "")
	}

	for _, edit := range edits {
		if edit.LineNumber < 1 || edit.LineNumber > len(lines) {
			e.logger.Warn(logModule, "Skipping out of range edit", map[string]interface{}{
				"line_number": edit.LineNumber,
				"line_count":  len(lines),
			})
			continue
		}
		if !validContent(edit.Content) {
			e.logger.Warn(logModule, "Invalid content for line", map[string]interface{}{
				"line_number": edit.LineNumber,
			})
			continue
		}
		lines[edit.LineNumber-1] = edit.Content
	}

	return strings.Join(lines, "\n"), nil
}

// Resolve parses editedArticle and applies it to original.
// ErrNoLineEdits means the text carried no usable tags.
func (e *Engine) Resolve(original, editedArticle string) (string, error) {
	edits := e.ParseLineEdits(editedArticle)
	if len(edits) == 0 {
		return "", ErrNoLineEdits
	}
	return e.ApplyEdits(original, edits)
}

func validContent(content string) bool {
	// cheap upper bound first
	if len(content) < MaxContentLength {
		return true
	}
	return utf8.RuneCountInString(content) < MaxContentLength
}
