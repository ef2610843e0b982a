package memory

import (
	"context"

	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

const credentialKey = "credentials"

type CredentialRepository struct {
	cache *cache.Cache
}

func NewCredentialRepository() contract.CredentialRepository {
	// Tokens carry their own expiry; the cache never evicts them.
	return &CredentialRepository{cache: cache.New(cache.NoExpiration, 0)}
}

func (r *CredentialRepository) Load(ctx context.Context) (*entity.TokenPair, error) {
	if x, found := r.cache.Get(credentialKey); found {
		pair := *x.(*entity.TokenPair)
		return &pair, nil
	}
	return nil, nil
}

func (r *CredentialRepository) Save(ctx context.Context, pair *entity.TokenPair) error {
	stored := *pair
	r.cache.Set(credentialKey, &stored, cache.NoExpiration)
	return nil
}

func (r *CredentialRepository) Clear(ctx context.Context) error {
	r.cache.Delete(credentialKey)
	return nil
}
