package ticket

import (
	"sync"

	"github.com/farellandr/lunchticket/internal/helpers"
)

// PriceBook holds the default lunch price used when a charge names none.
// It lives for the process only; a restart falls back to configuration.
type PriceBook struct {
	mu    sync.RWMutex
	price string
}

func NewPriceBook(initial string) *PriceBook {
	return &PriceBook{price: initial}
}

func (p *PriceBook) Current() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.price
}

func (p *PriceBook) Set(price string) error {
	if _, err := helpers.ParsePositivePrice(price); err != nil {
		return err
	}
	p.mu.Lock()
	p.price = price
	p.mu.Unlock()
	return nil
}
