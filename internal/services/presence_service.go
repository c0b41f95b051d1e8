package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"pairchat/internal/config"
	"pairchat/pkg/logger"
)

const presenceKeyPrefix = "presence:"

// PresenceService keeps a TTL heartbeat per connected user in Redis. The
// users collection stays the document of record for the online flag; the
// heartbeat covers crashed connections that never wrote offline.
type PresenceService struct {
	client *redis.Client
	cfg    config.PresenceConfig
}

func NewPresenceService(client *redis.Client, cfg config.PresenceConfig) *PresenceService {
	return &PresenceService{
		client: client,
		cfg:    cfg,
	}
}

// Heartbeat refreshes the user's presence key.
func (s *PresenceService) Heartbeat(ctx context.Context, uid string) error {
	err := s.client.Set(ctx, presenceKeyPrefix+uid, time.Now().Unix(), s.cfg.HeartbeatTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}
	return nil
}

// Offline drops the user's presence key immediately.
func (s *PresenceService) Offline(ctx context.Context, uid string) error {
	if err := s.client.Del(ctx, presenceKeyPrefix+uid).Err(); err != nil {
		return fmt.Errorf("failed to clear heartbeat: %w", err)
	}
	return nil
}

// IsOnline reports whether the user has a live heartbeat.
func (s *PresenceService) IsOnline(ctx context.Context, uid string) (bool, error) {
	err := s.client.Get(ctx, presenceKeyPrefix+uid).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read heartbeat: %w", err)
	}
	return true, nil
}

// RunHeartbeat refreshes the user's presence on the configured interval
// until the context is cancelled, then clears it.
func (s *PresenceService) RunHeartbeat(ctx context.Context, uid string) {
	if err := s.Heartbeat(ctx, uid); err != nil {
		logger.WithError(err).Warn("Presence heartbeat failed")
	}

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := s.Offline(cleanupCtx, uid); err != nil {
				logger.WithError(err).Warn("Presence cleanup failed")
			}
			return
		case <-ticker.C:
			if err := s.Heartbeat(ctx, uid); err != nil {
				logger.WithError(err).Warn("Presence heartbeat failed")
			}
		}
	}
}
