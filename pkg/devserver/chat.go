package devserver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"ai-workspace-editor/internal/dto"

	"github.com/gofiber/fiber/v2"
)

// Reply is what the fake assistant answers, already cut into stream chunks.
type Reply struct {
	ContentChunks          []string
	ThinkChunks            []string
	EditedChunks           []string
	EditedArticleRelatedTo string
	OtherData              map[string]interface{}
}

func (r Reply) Content() string       { return strings.Join(r.ContentChunks, "") }
func (r Reply) ThinkContent() string  { return strings.Join(r.ThinkChunks, "") }
func (r Reply) EditedArticle() string { return strings.Join(r.EditedChunks, "") }

type Responder func(ctx context.Context, req dto.ChatRequest) (Reply, error)

// EchoResponder repeats the last user message word by word. A message of the
// form "/replace N text" also proposes replacing line N of the article with text.
func EchoResponder(ctx context.Context, req dto.ChatRequest) (Reply, error) {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}

	reply := Reply{
		ThinkChunks: []string{"Reading ", req.Article.FileName},
		OtherData:   map[string]interface{}{"references": len(req.ReferenceArticles)},
	}
	for i, word := range strings.Fields("You said: " + last) {
		if i > 0 {
			word = " " + word
		}
		reply.ContentChunks = append(reply.ContentChunks, word)
	}

	if rest, ok := strings.CutPrefix(last, "/replace "); ok && req.Article.FileName != "" {
		numStr, text, _ := strings.Cut(rest, " ")
		if n, err := strconv.Atoi(numStr); err == nil && n > 0 {
			openTag, closeTag := fmt.Sprintf("<line_%d>", n), fmt.Sprintf("</line_%d>", n)
			reply.EditedChunks = []string{"Suggested change:\n", openTag, text, closeTag}
			reply.EditedArticleRelatedTo = req.Article.FileName
		}
	}
	return reply, nil
}

func (s *Server) handleCompletion(c *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.AssistantId == "" || len(req.Messages) == 0 {
		return detail(c, fiber.StatusUnprocessableEntity, "assistant_id and messages are required")
	}

	reply, err := s.cfg.Responder(c.UserContext(), req)
	if err != nil {
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}
	atomic.AddInt64(&s.completions, 1)

	return c.JSON(dto.ChatResponse{
		AssistantId:            req.AssistantId,
		Role:                   "assistant",
		Content:                reply.Content(),
		EditedArticle:          reply.EditedArticle(),
		EditedArticleRelatedTo: reply.EditedArticleRelatedTo,
		OtherData:              reply.OtherData,
	})
}
