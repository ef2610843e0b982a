package websocket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"ai-workspace-editor/internal/dto"
)

type FrameType string

const (
	FramePing      FrameType = "ping"
	FramePong      FrameType = "pong"
	FrameAuth      FrameType = "auth"
	FrameQuit      FrameType = "quit"
	FrameStream    FrameType = "stream"
	FrameStreamEnd FrameType = "stream_end"
)

var (
	ErrEmptyFrame      = errors.New("empty frame")
	ErrInvalidEncoding = errors.New("frame is not valid UTF-8")
	ErrNotAnObject     = errors.New("frame is not a JSON object")
)

// Frame is the union of every frame exchanged on the stream endpoint.
// Only the fields relevant to Type are populated.
type Frame struct {
	Type FrameType `json:"type"`

	// auth
	Token string `json:"token,omitempty"`

	// stream
	ContentChunk string `json:"content_chunk,omitempty"`
	ThinkChunk   string `json:"think_content_chunk,omitempty"`
	EditedChunk  string `json:"edited_article_chunk,omitempty"`

	// stream_end
	EditedArticleRelatedTo string                 `json:"edited_article_related_to,omitempty"`
	OtherData              map[string]interface{} `json:"other_data,omitempty"`
}

// StreamRequest is the outbound "stream" frame: the chat request flattened next to its type.
type StreamRequest struct {
	Type FrameType `json:"type"`
	dto.ChatRequest
}

func NewStreamRequest(req dto.ChatRequest) StreamRequest {
	return StreamRequest{Type: FrameStream, ChatRequest: req}
}

// IsStream reports whether the frame belongs to a chat stream.
func (f *Frame) IsStream() bool {
	return f.Type == FrameStream || f.Type == FrameStreamEnd
}

// DecodeFrame validates and decodes one inbound text payload.
func DecodeFrame(data []byte) (*Frame, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyFrame
	}
	if !utf8.Valid(trimmed) {
		return nil, ErrInvalidEncoding
	}
	if trimmed[0] != '{' {
		return nil, ErrNotAnObject
	}

	var frame Frame
	if err := json.Unmarshal(trimmed, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &frame, nil
}
