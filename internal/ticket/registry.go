package ticket

import "sync"

// Registry routes button presses to live handshakes by transaction id.
type Registry struct {
	mu            sync.RWMutex
	byTransaction map[int64]*Handshake
}

func NewRegistry() *Registry {
	return &Registry{byTransaction: make(map[int64]*Handshake)}
}

// Register adds h and drops any other handshake of the same user, whose
// ticket message has been superseded.
func (r *Registry) Register(h *Handshake) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, other := range r.byTransaction {
		if other.user.ID == h.user.ID {
			delete(r.byTransaction, id)
		}
	}
	r.byTransaction[h.transactionID] = h
}

func (r *Registry) Lookup(transactionID int64) (*Handshake, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byTransaction[transactionID]
	return h, ok
}

func (r *Registry) RemoveUser(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, h := range r.byTransaction {
		if h.user.ID == userID {
			delete(r.byTransaction, id)
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTransaction)
}
