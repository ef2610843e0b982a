package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

// CredentialRepositoryRedis keeps the token pair until its refresh token expires.
type CredentialRepositoryRedis struct {
	client *redis.Client
	key    string
}

func NewCredentialRepositoryRedis(client *redis.Client) contract.CredentialRepository {
	return &CredentialRepositoryRedis{client: client, key: "credentials"}
}

func (r *CredentialRepositoryRedis) Load(ctx context.Context) (*entity.TokenPair, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	var pair entity.TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return &pair, nil
}

func (r *CredentialRepositoryRedis) Save(ctx context.Context, pair *entity.TokenPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	ttl := time.Until(time.Unix(pair.RefreshExpiry, 0))
	if ttl <= 0 {
		// already expired; keep it briefly so the expiry can still be observed
		ttl = time.Minute
	}
	if err := r.client.Set(ctx, r.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (r *CredentialRepositoryRedis) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
