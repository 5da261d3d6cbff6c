package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultUserTTL is how long a resolved user stays cached
const DefaultUserTTL = 10 * time.Minute

// Store is the subset of a key/value cache the user cache needs
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// UserRepository caches auth0-id lookups of another domain.UserRepository.
// Cache failures never fail a request; they fall through to the wrapped repository.
type UserRepository struct {
	next   domain.UserRepository
	store  Store
	ttl    time.Duration
	logger zerolog.Logger
}

// NewUserRepository wraps next with a cache. A nil store disables caching.
func NewUserRepository(next domain.UserRepository, store Store, ttl time.Duration, logger zerolog.Logger) domain.UserRepository {
	if store == nil {
		return next
	}
	if ttl <= 0 {
		ttl = DefaultUserTTL
	}
	return &UserRepository{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger.With().Str("component", "user_cache").Logger(),
	}
}

func userKey(auth0ID string) string {
	return fmt.Sprintf("user:%s:data", auth0ID)
}

// GetByID is not cached
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.next.GetByID(ctx, id)
}

// GetByAuth0ID serves from cache when possible
func (r *UserRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	if u := r.load(ctx, auth0ID); u != nil {
		return u, nil
	}
	u, err := r.next.GetByAuth0ID(ctx, auth0ID)
	if err != nil {
		return nil, err
	}
	r.save(ctx, u)
	return u, nil
}

// CreateOrGetByAuth0ID only hits the database on a cache miss
func (r *UserRepository) CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name *string) (*domain.User, error) {
	if u := r.load(ctx, auth0ID); u != nil {
		return u, nil
	}
	u, err := r.next.CreateOrGetByAuth0ID(ctx, auth0ID, email, name)
	if err != nil {
		return nil, err
	}
	r.save(ctx, u)
	return u, nil
}

// ListByRoles is not cached
func (r *UserRepository) ListByRoles(ctx context.Context, roles ...domain.Role) ([]*domain.User, error) {
	return r.next.ListByRoles(ctx, roles...)
}

// UpdateRole updates the user and drops the cached entry
func (r *UserRepository) UpdateRole(ctx context.Context, id uuid.UUID, role domain.Role) (*domain.User, error) {
	u, err := r.next.UpdateRole(ctx, id, role)
	if err != nil {
		return nil, err
	}
	if err := r.store.Del(ctx, userKey(u.Auth0ID)); err != nil {
		r.logger.Error().Err(err).Str("user_id", u.ID.String()).Msg("Failed to invalidate cached user")
	}
	return u, nil
}

func (r *UserRepository) load(ctx context.Context, auth0ID string) *domain.User {
	data, ok, err := r.store.Get(ctx, userKey(auth0ID))
	if err != nil {
		r.logger.Error().Err(err).Msg("Cache GET failed")
		return nil
	}
	if !ok {
		return nil
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to unmarshal cached user")
		return nil
	}
	return &u
}

func (r *UserRepository) save(ctx context.Context, u *domain.User) {
	data, err := json.Marshal(u)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to marshal user for caching")
		return
	}
	if err := r.store.Set(ctx, userKey(u.Auth0ID), data, r.ttl); err != nil {
		r.logger.Error().Err(err).Msg("Cache SET failed")
	}
}

// RedisStore implements Store on a go-redis client
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr and pings it. An empty addr returns nil, nil so callers
// run without a cache.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// Get returns the value and whether the key existed
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores value under key for ttl
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Del removes keys
func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
