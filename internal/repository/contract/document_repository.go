package contract

import (
	"context"

	"ai-workspace-editor/internal/entity"
)

// DocumentRepository reads and writes workspace documents by id.
type DocumentRepository interface {
	Read(ctx context.Context, id string) (*entity.Document, error)
	Write(ctx context.Context, id string, content string) error
}

// VersionRepository stores named snapshots of a document.
type VersionRepository interface {
	Save(ctx context.Context, documentId string, name string, content string) (*entity.DocumentVersion, error)
	// List returns the versions of documentId, newest first.
	List(ctx context.Context, documentId string) ([]*entity.DocumentVersion, error)
	Load(ctx context.Context, version *entity.DocumentVersion) (string, error)
	Delete(ctx context.Context, version *entity.DocumentVersion) error
}
