package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/pkg/logger"
	"ai-workspace-editor/internal/repository/contract"
)

const versionModule = "VersionService"

var ErrInvalidVersionName = errors.New("version name must be non-empty and must not contain path separators")

type IVersionService interface {
	Create(ctx context.Context, documentId, name, content string) (*entity.DocumentVersion, error)
	List(ctx context.Context, documentId string) ([]*entity.DocumentVersion, error)
	// Content loads a snapshot for comparison without touching the document.
	Content(ctx context.Context, version *entity.DocumentVersion) (string, error)
	Delete(ctx context.Context, version *entity.DocumentVersion) error
	// Revert overwrites the document with the snapshot and returns the restored content.
	Revert(ctx context.Context, documentId string, version *entity.DocumentVersion) (string, error)
}

type versionService struct {
	versions  contract.VersionRepository
	documents contract.DocumentRepository
	logger    logger.ILogger
}

func NewVersionService(versions contract.VersionRepository, documents contract.DocumentRepository, log logger.ILogger) IVersionService {
	return &versionService{versions: versions, documents: documents, logger: log}
}

func (s *versionService) Create(ctx context.Context, documentId, name, content string) (*entity.DocumentVersion, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, ErrInvalidVersionName
	}

	version, err := s.versions.Save(ctx, documentId, name, content)
	if err != nil {
		s.logger.Error(versionModule, "Error creating version", map[string]interface{}{
			"document_id": documentId,
			"error":       err.Error(),
		})
		return nil, fmt.Errorf("create version: %w", err)
	}
	s.logger.Info(versionModule, "Version created", map[string]interface{}{
		"document_id": documentId,
		"file_path":   version.FilePath,
	})
	return version, nil
}

func (s *versionService) List(ctx context.Context, documentId string) ([]*entity.DocumentVersion, error) {
	return s.versions.List(ctx, documentId)
}

func (s *versionService) Content(ctx context.Context, version *entity.DocumentVersion) (string, error) {
	return s.versions.Load(ctx, version)
}

func (s *versionService) Delete(ctx context.Context, version *entity.DocumentVersion) error {
	if err := s.versions.Delete(ctx, version); err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	s.logger.Info(versionModule, "Version deleted", map[string]interface{}{"file_path": version.FilePath})
	return nil
}

func (s *versionService) Revert(ctx context.Context, documentId string, version *entity.DocumentVersion) (string, error) {
	content, err := s.versions.Load(ctx, version)
	if err != nil {
		return "", fmt.Errorf("load version: %w", err)
	}
	if err := s.documents.Write(ctx, documentId, content); err != nil {
		return "", fmt.Errorf("revert %s: %w", documentId, err)
	}
	s.logger.Info(versionModule, "Document reverted", map[string]interface{}{
		"document_id": documentId,
		"version":     version.Name,
	})
	return content, nil
}
