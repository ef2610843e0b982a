package service

import (
	"context"
	"errors"
	"testing"

	"ai-workspace-editor/internal/dto"
	"ai-workspace-editor/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssistants struct {
	list    []dto.AssistantDTO
	lists   int
	failing bool
}

func (f *fakeAssistants) ListAssistants(ctx context.Context) ([]dto.AssistantDTO, error) {
	f.lists++
	if f.failing {
		return nil, errors.New("backend down")
	}
	out := make([]dto.AssistantDTO, len(f.list))
	copy(out, f.list)
	return out, nil
}

func (f *fakeAssistants) CreateAssistant(ctx context.Context, req dto.CreateAssistantRequest) (*dto.AssistantDTO, error) {
	a := dto.AssistantDTO{AssistantId: req.AssistantName + "-id", AssistantName: req.AssistantName, LlmProvider: req.LlmProvider}
	f.list = append(f.list, a)
	return &a, nil
}

func (f *fakeAssistants) DeleteAssistant(ctx context.Context, assistantId string) error {
	for i, a := range f.list {
		if a.AssistantId == assistantId {
			f.list = append(f.list[:i], f.list[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeAssistants) UpdateAssistant(ctx context.Context, req dto.UpdateAssistantRequest) (*dto.AssistantDTO, error) {
	for i, a := range f.list {
		if a.AssistantId == req.AssistantId {
			f.list[i].AssistantName = req.AssistantName
			f.list[i].UserDefinedRules = req.UserDefinedRules
			out := f.list[i]
			return &out, nil
		}
	}
	return nil, errors.New("not found")
}

func TestAssistantListIsCachedUntilMutation(t *testing.T) {
	backend := &fakeAssistants{list: []dto.AssistantDTO{{AssistantId: "a1", AssistantName: "Editor"}}}
	svc := NewAssistantService(backend, logger.NewNopLogger())
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)
	_, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.lists)

	_, err = svc.Create(ctx, dto.CreateAssistantRequest{AssistantName: "Critic", LlmProvider: "qwen"})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, backend.lists)
}

func TestAssistantSelection(t *testing.T) {
	backend := &fakeAssistants{list: []dto.AssistantDTO{
		{AssistantId: "a1", AssistantName: "Editor"},
		{AssistantId: "a2", AssistantName: "Critic"},
	}}
	svc := NewAssistantService(backend, logger.NewNopLogger())
	ctx := context.Background()
	assert.Nil(t, svc.Selected())

	byName, err := svc.Select(ctx, "Critic")
	require.NoError(t, err)
	assert.Equal(t, "a2", byName.AssistantId)

	_, err = svc.Update(ctx, dto.UpdateAssistantRequest{AssistantId: "a2", AssistantName: "Harsh critic"})
	require.NoError(t, err)
	assert.Equal(t, "Harsh critic", svc.Selected().AssistantName)

	require.NoError(t, svc.Delete(ctx, "a2"))
	assert.Nil(t, svc.Selected())

	_, err = svc.Select(ctx, "a2")
	assert.ErrorIs(t, err, ErrAssistantNotFound)
}

func TestAssistantValidation(t *testing.T) {
	svc := NewAssistantService(&fakeAssistants{}, logger.NewNopLogger())

	_, err := svc.Create(context.Background(), dto.CreateAssistantRequest{AssistantName: "NoProvider"})
	assert.Error(t, err)
	_, err = svc.Update(context.Background(), dto.UpdateAssistantRequest{AssistantName: "no id"})
	assert.Error(t, err)
}

func TestAssistantListFailure(t *testing.T) {
	svc := NewAssistantService(&fakeAssistants{failing: true}, logger.NewNopLogger())
	_, err := svc.List(context.Background())
	assert.EqualError(t, err, "backend down")
}
