// Package redis provides Redis-backed implementations of domain interfaces.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/internal/domain/service"
	"github.com/turtacn/aegis/internal/infrastructure/gateway"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

const defaultKeyPrefix = "aegis:profile:"

// redisProfileStore keeps one JSON document per identity. Mutations run as
// WATCH/MULTI read-modify-write transactions; a lost race surfaces as
// redis.TxFailedErr, which the gateway retries like any transport failure.
type redisProfileStore struct {
	client    redis.UniversalClient
	gw        *gateway.Gateway
	keyPrefix string
	ttl       time.Duration
	log       logger.Logger
}

var _ service.ProfileStore = (*redisProfileStore)(nil)

// NewRedisProfileStore creates a ProfileStore over client. A zero ttl keeps profiles forever.
func NewRedisProfileStore(client redis.UniversalClient, gw *gateway.Gateway, keyPrefix string, ttl time.Duration, log logger.Logger) service.ProfileStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &redisProfileStore{
		client:    client,
		gw:        gw,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		log:       log.WithComponent("ProfileStore"),
	}
}

func (s *redisProfileStore) key(identityID string) string {
	return s.keyPrefix + identityID
}

// Get returns the stored profile of identityID.
func (s *redisProfileStore) Get(ctx context.Context, identityID string) (*models.SecurityProfile, error) {
	res, err := s.gw.Invoke(ctx, gateway.Operation{
		Name: "profile_store.get",
		Do: func(ctx context.Context) (*gateway.Result, error) {
			data, err := s.client.Get(ctx, s.key(identityID)).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil, errors.ErrNotFound("security_profile", identityID)
			}
			if err != nil {
				return nil, err
			}
			return &gateway.Result{StatusCode: http.StatusOK, Body: data}, nil
		},
	})
	if err != nil {
		return nil, err
	}

	profile, err := models.DecodeSecurityProfile(res.Body)
	if err != nil {
		return nil, errors.ErrMalformedResponse("profile_store.get", err)
	}
	return profile, nil
}

// Append applies update to the stored profile, creating it when absent.
func (s *redisProfileStore) Append(ctx context.Context, identityID string, update models.ProfileUpdate) error {
	return s.mutate(ctx, "profile_store.append", identityID, func(p *models.SecurityProfile) bool {
		p.Apply(update)
		return true
	})
}

// RecordFailure increments the failed-attempt counter.
func (s *redisProfileStore) RecordFailure(ctx context.Context, identityID string) error {
	return s.mutate(ctx, "profile_store.record_failure", identityID, func(p *models.SecurityProfile) bool {
		p.RecordFailure()
		return true
	})
}

// EnrollFactor adds factor to the enrolled factor set.
func (s *redisProfileStore) EnrollFactor(ctx context.Context, identityID, factor string) error {
	return s.mutate(ctx, "profile_store.enroll_factor", identityID, func(p *models.SecurityProfile) bool {
		return p.EnrollFactor(factor)
	})
}

func (s *redisProfileStore) mutate(ctx context.Context, name, identityID string, fn func(*models.SecurityProfile) bool) error {
	key := s.key(identityID)
	_, err := s.gw.Invoke(ctx, gateway.Operation{
		Name: name,
		Do: func(ctx context.Context) (*gateway.Result, error) {
			err := s.client.Watch(ctx, func(tx *redis.Tx) error {
				profile, err := s.load(ctx, tx, key, identityID)
				if err != nil {
					return err
				}
				if !fn(profile) {
					return nil
				}
				data, err := json.Marshal(profile)
				if err != nil {
					return errors.ErrInternal(fmt.Sprintf("failed to marshal profile %s", identityID), err)
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, data, s.ttl)
					return nil
				})
				return err
			}, key)
			if err != nil {
				return nil, err
			}
			return &gateway.Result{StatusCode: http.StatusNoContent}, nil
		},
	})
	if err != nil {
		s.log.Warn(ctx, "profile mutation failed",
			logger.String("operation", name),
			logger.String("identity_id", identityID),
			logger.Err(err))
	}
	return err
}

// load reads the profile inside a transaction. A missing or unreadable document
// starts a fresh profile so that history keeps accumulating.
func (s *redisProfileStore) load(ctx context.Context, tx *redis.Tx, key, identityID string) (*models.SecurityProfile, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewSecurityProfile(identityID), nil
	}
	if err != nil {
		return nil, err
	}
	profile, err := models.DecodeSecurityProfile(data)
	if err != nil {
		s.log.Warn(ctx, "stored profile unreadable, starting fresh",
			logger.String("identity_id", identityID), logger.Err(err))
		return models.NewSecurityProfile(identityID), nil
	}
	return profile, nil
}
