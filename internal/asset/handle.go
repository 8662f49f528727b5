package asset

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrHandleRevoked is returned when reading a handle after release.
	ErrHandleRevoked = errors.New("preview handle revoked")
	// ErrHandleReleased is returned on a second release of the same handle.
	ErrHandleReleased = errors.New("preview handle already released")
	// ErrHandleNotFound is returned for ids the registry never issued.
	ErrHandleNotFound = errors.New("preview handle not found")
)

// Registry issues and revokes preview handles, the local equivalent of
// object URLs: readers resolve a handle id to the payload it stands for.
type Registry struct {
	mu      sync.RWMutex
	live    map[string]Payload
	revoked map[string]struct{}
}

// NewRegistry creates an empty handle registry.
func NewRegistry() *Registry {
	return &Registry{
		live:    make(map[string]Payload),
		revoked: make(map[string]struct{}),
	}
}

// Create registers payload and returns its handle.
func (r *Registry) Create(payload Payload) *Handle {
	id := uuid.NewString()

	r.mu.Lock()
	r.live[id] = payload
	r.mu.Unlock()

	return &Handle{id: id, registry: r}
}

// Resolve returns the payload behind a live handle id.
func (r *Registry) Resolve(id string) (Payload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.live[id]; ok {
		return p, nil
	}
	if _, ok := r.revoked[id]; ok {
		return nil, ErrHandleRevoked
	}
	return nil, ErrHandleNotFound
}

// Live returns the number of unreleased handles.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

// revoke removes id; the second call for the same id fails.
func (r *Registry) revoke(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.live[id]; !ok {
		if _, gone := r.revoked[id]; gone {
			return ErrHandleReleased
		}
		return ErrHandleNotFound
	}
	delete(r.live, id)
	r.revoked[id] = struct{}{}
	return nil
}

// Handle is a revocable reference to an asset payload.
type Handle struct {
	id       string
	registry *Registry
}

// ID returns the handle identifier.
func (h *Handle) ID() string {
	return h.id
}

// URL returns the handle in blob URL form.
func (h *Handle) URL() string {
	return "blob:" + h.id
}

// Open reads the payload while the handle is live.
func (h *Handle) Open() (Payload, error) {
	return h.registry.Resolve(h.id)
}

// Release revokes the handle. Only the first call succeeds.
func (h *Handle) Release() error {
	return h.registry.revoke(h.id)
}
