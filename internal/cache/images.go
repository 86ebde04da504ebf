package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/farellandr/lunchticket/internal/ticket"
	"github.com/redis/go-redis/v9"
)

const DefaultImageTTL = 24 * time.Hour

// ImageSlots keeps each user's pending proof image in Redis so an upload
// survives a bot restart. A newer upload overwrites the older one.
type ImageSlots struct {
	client *redis.Client
	ttl    time.Duration
}

func NewImageSlots(client *redis.Client, ttl time.Duration) *ImageSlots {
	if ttl <= 0 {
		ttl = DefaultImageTTL
	}
	return &ImageSlots{client: client, ttl: ttl}
}

func imageKey(userID int64) string {
	return fmt.Sprintf("lunch:pending_image:%d", userID)
}

func (s *ImageSlots) Put(ctx context.Context, userID int64, img ticket.PendingImage) error {
	data, err := json.Marshal(img)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, imageKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store pending image: %w", err)
	}
	return nil
}

func (s *ImageSlots) Get(ctx context.Context, userID int64) (ticket.PendingImage, bool, error) {
	var img ticket.PendingImage
	data, err := s.client.Get(ctx, imageKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return img, false, nil
	}
	if err != nil {
		return img, false, fmt.Errorf("failed to read pending image: %w", err)
	}
	if err := json.Unmarshal(data, &img); err != nil {
		return img, false, fmt.Errorf("corrupt pending image for user %d: %w", userID, err)
	}
	return img, true, nil
}

func (s *ImageSlots) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, imageKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear pending image: %w", err)
	}
	return nil
}
