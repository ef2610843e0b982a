package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-workspace-editor/internal/dto"
	"ai-workspace-editor/internal/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"
)

const (
	assistantModule   = "AssistantService"
	assistantCacheKey = "assistants"
	assistantCacheTTL = 5 * time.Minute
)

var ErrAssistantNotFound = errors.New("assistant not found")

// AssistantGateway is the assistant CRUD surface of the backend.
type AssistantGateway interface {
	ListAssistants(ctx context.Context) ([]dto.AssistantDTO, error)
	CreateAssistant(ctx context.Context, req dto.CreateAssistantRequest) (*dto.AssistantDTO, error)
	DeleteAssistant(ctx context.Context, assistantId string) error
	UpdateAssistant(ctx context.Context, req dto.UpdateAssistantRequest) (*dto.AssistantDTO, error)
}

type IAssistantService interface {
	// List serves from cache until a mutation or Refresh invalidates it.
	List(ctx context.Context) ([]dto.AssistantDTO, error)
	Refresh(ctx context.Context) ([]dto.AssistantDTO, error)
	Create(ctx context.Context, req dto.CreateAssistantRequest) (*dto.AssistantDTO, error)
	Update(ctx context.Context, req dto.UpdateAssistantRequest) (*dto.AssistantDTO, error)
	Delete(ctx context.Context, assistantId string) error
	// Select resolves an assistant by id or name and remembers it.
	Select(ctx context.Context, idOrName string) (*dto.AssistantDTO, error)
	Selected() *dto.AssistantDTO
}

type assistantService struct {
	api      AssistantGateway
	cache    *cache.Cache
	validate *validator.Validate
	logger   logger.ILogger

	mu       sync.RWMutex
	selected *dto.AssistantDTO
}

func NewAssistantService(api AssistantGateway, log logger.ILogger) IAssistantService {
	return &assistantService{
		api:      api,
		cache:    cache.New(assistantCacheTTL, 10*time.Minute),
		validate: validator.New(),
		logger:   log,
	}
}

func (s *assistantService) List(ctx context.Context) ([]dto.AssistantDTO, error) {
	if x, found := s.cache.Get(assistantCacheKey); found {
		return x.([]dto.AssistantDTO), nil
	}
	return s.Refresh(ctx)
}

func (s *assistantService) Refresh(ctx context.Context) ([]dto.AssistantDTO, error) {
	list, err := s.api.ListAssistants(ctx)
	if err != nil {
		s.logger.Error(assistantModule, "Failed to fetch assistants", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	s.cache.Set(assistantCacheKey, list, cache.DefaultExpiration)
	return list, nil
}

func (s *assistantService) Create(ctx context.Context, req dto.CreateAssistantRequest) (*dto.AssistantDTO, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid assistant: %w", err)
	}
	created, err := s.api.CreateAssistant(ctx, req)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(assistantCacheKey)
	s.logger.Info(assistantModule, "Assistant created", map[string]interface{}{"assistant_id": created.AssistantId})
	return created, nil
}

func (s *assistantService) Update(ctx context.Context, req dto.UpdateAssistantRequest) (*dto.AssistantDTO, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid assistant: %w", err)
	}
	updated, err := s.api.UpdateAssistant(ctx, req)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(assistantCacheKey)

	s.mu.Lock()
	if s.selected != nil && s.selected.AssistantId == updated.AssistantId {
		cp := *updated
		s.selected = &cp
	}
	s.mu.Unlock()
	return updated, nil
}

func (s *assistantService) Delete(ctx context.Context, assistantId string) error {
	if err := s.api.DeleteAssistant(ctx, assistantId); err != nil {
		return err
	}
	s.cache.Delete(assistantCacheKey)

	s.mu.Lock()
	if s.selected != nil && s.selected.AssistantId == assistantId {
		s.selected = nil
	}
	s.mu.Unlock()
	s.logger.Info(assistantModule, "Assistant deleted", map[string]interface{}{"assistant_id": assistantId})
	return nil
}

func (s *assistantService) Select(ctx context.Context, idOrName string) (*dto.AssistantDTO, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].AssistantId == idOrName || list[i].AssistantName == idOrName {
			cp := list[i]
			s.mu.Lock()
			s.selected = &cp
			s.mu.Unlock()
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAssistantNotFound, idOrName)
}

func (s *assistantService) Selected() *dto.AssistantDTO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return nil
	}
	cp := *s.selected
	return &cp
}
