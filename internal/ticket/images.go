package ticket

import (
	"context"
	"sync"
	"time"
)

// PendingImage is the last image a user uploaded to their ticket channel
// and has not yet submitted as proof.
type PendingImage struct {
	URL         string    `json:"url"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ImageSlots holds at most one pending image per user; a new upload
// replaces the previous one.
type ImageSlots interface {
	Put(ctx context.Context, userID int64, img PendingImage) error
	Get(ctx context.Context, userID int64) (PendingImage, bool, error)
	Clear(ctx context.Context, userID int64) error
}

type MemoryImageSlots struct {
	mu    sync.Mutex
	slots map[int64]PendingImage
}

func NewMemoryImageSlots() *MemoryImageSlots {
	return &MemoryImageSlots{slots: make(map[int64]PendingImage)}
}

func (m *MemoryImageSlots) Put(_ context.Context, userID int64, img PendingImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[userID] = img
	return nil
}

func (m *MemoryImageSlots) Get(_ context.Context, userID int64) (PendingImage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.slots[userID]
	return img, ok, nil
}

func (m *MemoryImageSlots) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, userID)
	return nil
}
