package lower

import "sync"

// FieldRegistry maps container names to their declared field order.
//
// It is populated while containers are translated and queried by the
// field-access sugar rule, possibly from other workers, so access is
// synchronized. A missing or empty entry answers false.
type FieldRegistry struct {
	mu     sync.RWMutex
	fields map[string][]string
}

// NewFieldRegistry returns an empty registry.
func NewFieldRegistry() *FieldRegistry {
	return &FieldRegistry{fields: make(map[string][]string)}
}

// Declare records the declared field order for container. Later declarations
// replace earlier ones.
func (r *FieldRegistry) Declare(container string, fields []string) {
	cp := make([]string, len(fields))
	copy(cp, fields)
	r.mu.Lock()
	r.fields[container] = cp
	r.mu.Unlock()
}

// Fields returns the declared field order of container. The second result is
// false when the container declared no fields (it is not record-like).
func (r *FieldRegistry) Fields(container string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fields[container]
	if !ok || len(f) == 0 {
		return nil, false
	}
	cp := make([]string, len(f))
	copy(cp, f)
	return cp, true
}
