package contract

import (
	"context"

	"ai-workspace-editor/internal/entity"
)

// CredentialRepository persists the single token pair of the signed-in user.
type CredentialRepository interface {
	// Load returns nil, nil when nothing is stored.
	Load(ctx context.Context) (*entity.TokenPair, error)
	Save(ctx context.Context, pair *entity.TokenPair) error
	Clear(ctx context.Context) error
}
