package editpatch

import (
	"strings"
	"testing"

	"ai-workspace-editor/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// warnCounter counts warnings and drops everything else.
type warnCounter struct {
	logger.ILogger
	warnings []string
}

func (w *warnCounter) Warn(module, message string, details map[string]interface{}) {
	w.warnings = append(w.warnings, message)
}

func newTestEngine() *Engine {
	return NewEngine(logger.NewNopLogger())
}

func TestParseLineEdits(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []LineEdit
	}{
		{
			name:  "sorted ascending",
			input: "<line_3>foo</line_3><line_1>bar</line_1>",
			want:  []LineEdit{{LineNumber: 1, Content: "bar"}, {LineNumber: 3, Content: "foo"}},
		},
		{
			name:  "last duplicate wins",
			input: "<line_2>first</line_2> chatter <line_2>second</line_2>",
			want:  []LineEdit{{LineNumber: 2, Content: "second"}},
		},
		{
			name:  "multi-line content kept verbatim",
			input: "<line_5>a\n  b\n</line_5>",
			want:  []LineEdit{{LineNumber: 5, Content: "a\n  b\n"}},
		},
		{
			name:  "mismatched close tag is not a pair",
			input: "<line_1>x</line_2>",
			want:  []LineEdit{},
		},
		{
			name:  "zero and out of range skipped",
			input: "<line_0>zero</line_0><line_100001>far</line_100001><line_100000>edge</line_100000>",
			want:  []LineEdit{{LineNumber: 100000, Content: "edge"}},
		},
		{
			name:  "empty content allowed",
			input: "<line_4></line_4>",
			want:  []LineEdit{{LineNumber: 4, Content: ""}},
		},
		{
			name:  "non-greedy within a pair",
			input: "<line_1>a</line_1><line_1>b</line_1>",
			want:  []LineEdit{{LineNumber: 1, Content: "b"}},
		},
		{
			name:  "no tags",
			input: "plain answer with no edits",
			want:  []LineEdit{},
		},
	}

	e := newTestEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ParseLineEdits(tt.input))
		})
	}
}

func TestApplyEdits(t *testing.T) {
	tests := []struct {
		name     string
		original string
		edits    []LineEdit
		want     string
	}{
		{
			name:     "replace middle line",
			original: "a\nb\nc",
			edits:    []LineEdit{{LineNumber: 2, Content: "X"}},
			want:     "a\nX\nc",
		},
		{
			name:     "pad past end",
			original: "a",
			edits:    []LineEdit{{LineNumber: 3, Content: "Z"}},
			want:     "a\n\nZ",
		},
		{
			name:     "no edits returns original",
			original: "a\nb",
			edits:    nil,
			want:     "a\nb",
		},
		{
			name:     "multi-line content expands in place",
			original: "title\nbody",
			edits:    []LineEdit{{LineNumber: 2, Content: "body one\nbody two"}},
			want:     "title\nbody one\nbody two",
		},
		{
			name:     "invalid line number ignored",
			original: "a\nb",
			edits:    []LineEdit{{LineNumber: 0, Content: "nope"}, {LineNumber: 1, Content: "A"}},
			want:     "A\nb",
		},
	}

	e := newTestEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ApplyEdits(tt.original, tt.edits)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyEditsEmptyOriginal(t *testing.T) {
	_, err := newTestEngine().ApplyEdits("", []LineEdit{{LineNumber: 1, Content: "x"}})
	assert.ErrorIs(t, err, ErrEmptyOriginal)
}

func TestApplyEditsSkipsOversizedContent(t *testing.T) {
	huge := strings.Repeat("x", MaxContentLength)
	got, err := newTestEngine().ApplyEdits("a\nb", []LineEdit{
		{LineNumber: 1, Content: huge},
		{LineNumber: 2, Content: "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a\nB", got)
}

func TestApplyEditsPaddingIsBounded(t *testing.T) {
	got, err := newTestEngine().ApplyEdits("a", []LineEdit{
		{LineNumber: MaxLineNumber + 50, Content: "beyond"},
	})
	require.NoError(t, err)
	assert.Equal(t, MaxLineNumber, strings.Count(got, "\n")+1)
	assert.NotContains(t, got, "beyond")
}

func TestApplyEditsIsIdempotent(t *testing.T) {
	e := newTestEngine()
	edits := []LineEdit{{LineNumber: 2, Content: "X"}, {LineNumber: 4, Content: "Y"}}

	first, err := e.ApplyEdits("a\nb\nc", edits)
	require.NoError(t, err)
	second, err := e.ApplyEdits("a\nb\nc", edits)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "a\nX\nc\nY", first)
}

func TestResolve(t *testing.T) {
	e := newTestEngine()

	got, err := e.Resolve("# Title\nold\nend", "Here you go:\n<line_2>new</line_2>")
	require.NoError(t, err)
	assert.Equal(t, "# Title\nnew\nend", got)

	_, err = e.Resolve("# Title", "a full rewrite without tags")
	assert.ErrorIs(t, err, ErrNoLineEdits)

	_, err = e.Resolve("", "<line_1>x</line_1>")
	assert.ErrorIs(t, err, ErrEmptyOriginal)
}

func TestParseLineEditsInvalidUTF8(t *testing.T) {
	log := &warnCounter{ILogger: logger.NewNopLogger()}
	e := NewEngine(log)

	got := e.ParseLineEdits("<line_2>a\xffb</line_2>")
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].LineNumber)
	assert.Equal(t, "a\uFFFDb", got[0].Content)
	assert.Len(t, log.warnings, 1)

	log.warnings = nil
	e.ParseLineEdits("<line_1>café</line_1>")
	assert.Empty(t, log.warnings)
}
