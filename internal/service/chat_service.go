package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ai-workspace-editor/internal/dto"
	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/pkg/logger"
	"ai-workspace-editor/internal/repository/contract"
	"ai-workspace-editor/internal/websocket"
	"ai-workspace-editor/pkg/editpatch"
	"ai-workspace-editor/pkg/events"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const (
	chatModule         = "ChatService"
	defaultTurnTimeout = 5 * time.Minute
	maxParallelReads   = 8
)

var (
	// ErrTurnRejected is returned for blank input or a missing document. Not user-facing.
	ErrTurnRejected      = errors.New("turn rejected")
	ErrTurnInFlight      = errors.New("a turn is already in flight")
	ErrStreamInterrupted = errors.New("stream interrupted before completion")
	ErrTurnTimeout       = errors.New("turn timed out")
)

// StreamSession is the streaming transport the orchestrator drives.
type StreamSession interface {
	IsConnected() bool
	Connect(ctx context.Context) error
	SendStreamRequest(payload interface{}) error
	Subscribe(handler websocket.StreamHandler) func()
	OnDisconnect(handler websocket.DisconnectHandler) func()
	Disconnect()
}

// ChatCompleter is the blocking request/response channel.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, req dto.ChatRequest) (*dto.ChatResponse, error)
}

// ChatTurn is everything one user turn needs. Document.Content is the
// snapshot edits are resolved against.
type ChatTurn struct {
	ConversationId    uuid.UUID
	AssistantId       string
	Input             string
	Document          *entity.Document
	OtherArticles     []entity.DocumentRef
	ReferenceArticles []entity.DocumentRef
	Highlight         dto.HighlightData
	// Streaming overrides the configured mode when set.
	Streaming *bool
	// OnProgress receives a copy of the in-flight message after every chunk.
	OnProgress func(partial entity.Message)
}

type TurnResult struct {
	UserMessage      *entity.Message
	AssistantMessage *entity.Message
	// EditedDocument is the materialized candidate document; empty when the
	// reply carried no resolvable line edits.
	EditedDocument string
	// RestoredInput hands the input back after a failed turn.
	RestoredInput string
}

type ChatServiceConfig struct {
	Streaming   bool
	TurnTimeout time.Duration
}

type IChatService interface {
	SendMessage(ctx context.Context, turn ChatTurn) (*TurnResult, error)
	// InFlight returns a copy of the message being streamed, or nil.
	InFlight() *entity.Message
	IsStreaming() bool
}

type chatService struct {
	cfg           ChatServiceConfig
	conversations contract.ConversationRepository
	documents     contract.DocumentRepository
	session       StreamSession
	completer     ChatCompleter
	tokens        ITokenService
	patcher       *editpatch.Engine
	publisher     events.Publisher
	logger        logger.ILogger

	mu        sync.Mutex
	busy      bool
	streaming bool
	inFlight  *entity.Message
}

func NewChatService(
	cfg ChatServiceConfig,
	conversations contract.ConversationRepository,
	documents contract.DocumentRepository,
	session StreamSession,
	completer ChatCompleter,
	tokens ITokenService,
	patcher *editpatch.Engine,
	publisher events.Publisher,
	log logger.ILogger,
) IChatService {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	return &chatService{
		cfg:           cfg,
		conversations: conversations,
		documents:     documents,
		session:       session,
		completer:     completer,
		tokens:        tokens,
		patcher:       patcher,
		publisher:     publisher,
		logger:        log,
	}
}

func (s *chatService) SendMessage(ctx context.Context, turn ChatTurn) (*TurnResult, error) {
	// 1. Validate; a rejected turn is a logged no-op
	if strings.TrimSpace(turn.Input) == "" || turn.Document == nil {
		s.logger.Debug(chatModule, "Missing input or document", map[string]interface{}{
			"has_input":    strings.TrimSpace(turn.Input) != "",
			"has_document": turn.Document != nil,
		})
		return nil, ErrTurnRejected
	}

	if !s.begin() {
		s.logger.Warn(chatModule, "Turn rejected, another one is in flight", nil)
		return nil, ErrTurnInFlight
	}
	defer s.end()

	streaming := s.cfg.Streaming
	if turn.Streaming != nil {
		streaming = *turn.Streaming
	}

	ctx, span := otel.Tracer("chat").Start(ctx, "ChatService.SendMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("assistant_id", turn.AssistantId),
		attribute.String("conversation_id", turn.ConversationId.String()),
		attribute.Bool("streaming", streaming),
	)

	snapshot := turn.Document.Content
	result := &TurnResult{UserMessage: entity.NewUserMessage(turn.ConversationId, turn.Input)}

	fail := func(err error) (*TurnResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error(chatModule, "Error sending message", map[string]interface{}{
			"conversation_id": turn.ConversationId,
			"error":           err.Error(),
		})
		s.publish(ctx, events.New(events.TurnFailed, map[string]interface{}{
			"conversation_id": turn.ConversationId.String(),
			"error":           err.Error(),
		}))
		result.RestoredInput = turn.Input
		return result, err
	}

	// 2. Optimistic user message
	if err := s.conversations.AppendMessage(ctx, turn.ConversationId, result.UserMessage); err != nil {
		return fail(fmt.Errorf("append user message: %w", err))
	}

	// 3. Resolve referenced documents and history
	req, err := s.buildRequest(ctx, turn)
	if err != nil {
		return fail(err)
	}

	// 4-5. Send and accumulate
	var reply *entity.Message
	if streaming {
		reply, err = s.streamTurn(ctx, turn, req)
	} else {
		reply, err = s.completeTurn(ctx, turn, req)
	}
	if err != nil {
		return fail(err)
	}

	// 6. Materialize line edits against the pre-turn snapshot
	if reply.EditedArticle != "" {
		if resolved, err := s.patcher.Resolve(snapshot, reply.EditedArticle); err != nil {
			s.logger.Warn(chatModule, "Keeping raw edited article", map[string]interface{}{"error": err.Error()})
		} else {
			reply.EditedArticle = resolved
			result.EditedDocument = resolved
		}
	}

	// 7. Finalize
	if err := s.conversations.AppendMessage(ctx, turn.ConversationId, reply); err != nil {
		return fail(fmt.Errorf("append assistant message: %w", err))
	}
	result.AssistantMessage = reply

	s.publish(ctx, events.New(events.TurnCompleted, map[string]interface{}{
		"conversation_id": turn.ConversationId.String(),
		"message_id":      reply.Id.String(),
		"has_edits":       result.EditedDocument != "",
	}))
	s.logger.Info(chatModule, "Turn completed", map[string]interface{}{
		"conversation_id": turn.ConversationId,
		"content_length":  len(reply.Content),
	})
	return result, nil
}

func (s *chatService) InFlight() *entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil {
		return nil
	}
	cp := *s.inFlight
	return &cp
}

func (s *chatService) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *chatService) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *chatService) end() {
	s.mu.Lock()
	s.busy = false
	s.streaming = false
	s.inFlight = nil
	s.mu.Unlock()
}

func (s *chatService) buildRequest(ctx context.Context, turn ChatTurn) (dto.ChatRequest, error) {
	others, err := s.loadArticles(ctx, turn.Document.Id, turn.OtherArticles)
	if err != nil {
		return dto.ChatRequest{}, err
	}
	references, err := s.loadArticles(ctx, turn.Document.Id, turn.ReferenceArticles)
	if err != nil {
		return dto.ChatRequest{}, err
	}

	conversation, err := s.conversations.FindById(ctx, turn.ConversationId)
	if err != nil {
		return dto.ChatRequest{}, fmt.Errorf("load history: %w", err)
	}
	if conversation == nil {
		return dto.ChatRequest{}, contract.ErrConversationNotFound
	}
	messages := make([]dto.ChatMessageDTO, 0, len(conversation.Messages))
	for _, m := range conversation.Messages {
		messages = append(messages, dto.ChatMessageDTO{Role: m.Role, Content: m.Content})
	}

	return dto.ChatRequest{
		AssistantId: turn.AssistantId,
		Messages:    messages,
		Article: dto.ArticleData{
			FileName:     turn.Document.FileName,
			Content:      turn.Document.Content,
			FileCategory: turn.Document.FileCategory,
		},
		HighlightData:     turn.Highlight,
		OtherArticles:     others,
		ReferenceArticles: references,
		Config:            map[string]interface{}{},
	}, nil
}

// loadArticles reads refs in parallel, preserving order and skipping the current document.
func (s *chatService) loadArticles(ctx context.Context, currentId string, refs []entity.DocumentRef) ([]dto.ArticleData, error) {
	filtered := make([]entity.DocumentRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Id != currentId {
			filtered = append(filtered, ref)
		}
	}

	articles := make([]dto.ArticleData, len(filtered))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, ref := range filtered {
		g.Go(func() error {
			doc, err := s.documents.Read(gctx, ref.Id)
			if err != nil {
				return fmt.Errorf("read %s: %w", ref.Id, err)
			}
			articles[i] = dto.ArticleData{
				FileName:     ref.FileName,
				Content:      doc.Content,
				FileCategory: ref.FileCategory,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return articles, nil
}

func (s *chatService) completeTurn(ctx context.Context, turn ChatTurn, req dto.ChatRequest) (*entity.Message, error) {
	resp, err := s.completer.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	msg := entity.NewAssistantMessage(turn.ConversationId)
	msg.Content = resp.Content
	msg.EditedArticle = resp.EditedArticle
	msg.EditedArticleRelatedTo = resp.EditedArticleRelatedTo
	msg.OtherData = resp.OtherData
	return msg, nil
}

func (s *chatService) streamTurn(ctx context.Context, turn ChatTurn, req dto.ChatRequest) (*entity.Message, error) {
	// 1. Lazy connect, refreshing first so the auth frame carries a live token
	if !s.session.IsConnected() {
		if err := s.ensureAccessToken(ctx); err != nil {
			return nil, err
		}
		if err := s.session.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect stream: %w", err)
		}
	}

	// 2. Subscribe before sending so no chunk is missed
	acc := entity.NewAssistantMessage(turn.ConversationId)
	s.mu.Lock()
	s.inFlight = acc
	s.streaming = true
	s.mu.Unlock()

	done := make(chan struct{})
	lost := make(chan error, 1)
	var finishOnce sync.Once
	finish := func() { finishOnce.Do(func() { close(done) }) }

	unsubscribe := s.session.Subscribe(func(frame *websocket.Frame) {
		select {
		case <-done:
			return
		default:
		}

		s.mu.Lock()
		switch frame.Type {
		case websocket.FrameStream:
			acc.Content += frame.ContentChunk
			acc.ThinkContent += frame.ThinkChunk
			acc.EditedArticle += frame.EditedChunk
		case websocket.FrameStreamEnd:
			acc.EditedArticleRelatedTo = frame.EditedArticleRelatedTo
			acc.OtherData = frame.OtherData
		}
		partial := *acc
		s.mu.Unlock()

		if frame.Type == websocket.FrameStreamEnd {
			finish()
			return
		}
		if turn.OnProgress != nil {
			turn.OnProgress(partial)
		}
	})
	defer unsubscribe()

	stopWatching := s.session.OnDisconnect(func(err error) {
		select {
		case lost <- err:
		default:
		}
	})
	defer stopWatching()

	// 3. Send
	if err := s.session.SendStreamRequest(websocket.NewStreamRequest(req)); err != nil {
		return nil, fmt.Errorf("send stream request: %w", err)
	}

	// 4. Wait for stream_end
	timer := time.NewTimer(s.cfg.TurnTimeout)
	defer timer.Stop()

	collect := func() *entity.Message {
		s.mu.Lock()
		defer s.mu.Unlock()
		final := *acc
		return &final
	}

	select {
	case <-done:
		return collect(), nil
	case err := <-lost:
		// stream_end may have landed just before the drop
		select {
		case <-done:
			return collect(), nil
		default:
		}
		return nil, fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
	case <-timer.C:
		s.abandon(turn, ErrTurnTimeout)
		return nil, ErrTurnTimeout
	case <-ctx.Done():
		s.abandon(turn, ctx.Err())
		return nil, ctx.Err()
	}
}

// abandon drops the connection under a turn that is given up on. The server
// would otherwise keep streaming the old reply into the next turn.
func (s *chatService) abandon(turn ChatTurn, reason error) {
	s.logger.Warn(chatModule, "Abandoning streaming turn, dropping connection", map[string]interface{}{
		"conversation_id": turn.ConversationId,
		"error":           reason.Error(),
	})
	s.session.Disconnect()
}

func (s *chatService) ensureAccessToken(ctx context.Context) error {
	if _, ok := s.tokens.GetAccessToken(); ok {
		return nil
	}
	if !s.tokens.CanMakeRequest() {
		return ErrSessionExpired
	}
	if _, err := s.tokens.RefreshAccessToken(ctx); err != nil {
		return err
	}
	return nil
}

func (s *chatService) publish(ctx context.Context, evt events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Warn(chatModule, "Failed to publish event", map[string]interface{}{
			"event": evt.EventType(),
			"error": err.Error(),
		})
	}
}
