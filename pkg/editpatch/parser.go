package editpatch

import (
	"errors"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"ai-workspace-editor/internal/pkg/logger"

	"github.com/dlclark/regexp2"
)

const (
	// MaxLineNumber bounds both accepted tags and document padding.
	MaxLineNumber = 100000

	// MaxContentLength is the largest line content, in characters, that will be written.
	MaxContentLength = 1000000

	matchTimeout = 5 * time.Second
	logModule    = "EditPatch"
)

var (
	ErrEmptyOriginal = errors.New("original content cannot be empty")
	ErrNoLineEdits   = errors.New("no line edits found")
)

// <line_N>...</line_N> where the closing tag repeats the same N.
// RE2 has no back-references, hence regexp2.
var lineEditPattern = func() *regexp2.Regexp {
	re := regexp2.MustCompile(`<line_([0-9]+)>([\s\S]*?)</line_\1>`, regexp2.None)
	re.MatchTimeout = matchTimeout
	return re
}()

// LineEdit replaces one 1-based line of a document.
type LineEdit struct {
	LineNumber int    `json:"line_number"`
	Content    string `json:"content"`
}

// Engine parses and applies line edits emitted by the assistant.
// It holds no state besides its logger and is safe for concurrent use.
type Engine struct {
	logger logger.ILogger
}

func NewEngine(log logger.ILogger) *Engine {
	return &Engine{logger: log}
}

// ParseLineEdits extracts every tagged line from text. Tags for the same line
// collapse to the last one; the result is sorted by line number.
// Matching runs over runes, so invalid UTF-8 inside a tag comes back as U+FFFD.
func (e *Engine) ParseLineEdits(text string) []LineEdit {
	re := lineEditPattern
	if !utf8.ValidString(text) {
		e.logger.Warn(logModule, "Edited article is not valid UTF-8, invalid bytes become U+FFFD", map[string]interface{}{
			"length": len(text),
		})
	}
	edits := make(map[int]string)

	m, err := re.FindStringMatch(text)
	for m != nil && err == nil {
		groups := m.Groups()
		rawNumber := groups[1].String()
		lineNum, convErr := strconv.Atoi(rawNumber)
		if convErr != nil || lineNum < 1 || lineNum > MaxLineNumber {
			e.logger.Warn(logModule, "Skipping invalid line number", map[string]interface{}{
				"line_number": rawNumber,
			})
		} else {
			edits[lineNum] = groups[2].String()
		}
		m, err = re.FindNextMatch(m)
	}
	if err != nil {
		e.logger.Warn(logModule, "Line edit scan aborted", map[string]interface{}{
			"error":       err.Error(),
			"edits_found": len(edits),
		})
	}

	result := make([]LineEdit, 0, len(edits))
	for lineNumber, content := range edits {
		result = append(result, LineEdit{LineNumber: lineNumber, Content: content})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LineNumber < result[j].LineNumber
	})

	return result
}
