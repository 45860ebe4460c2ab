package propagation

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/star/orbitrisk/internal/metrics"
	"github.com/star/orbitrisk/internal/tle"
)

type registryKey struct {
	id      int
	epoch   int64
	backend Backend
}

// Registry memoizes initialized propagators. Entries are keyed by element
// set identity, so a new element set for the same satellite gets a new
// model. Results of propagation are never cached here.
type Registry struct {
	backend Backend
	models  *expirable.LRU[registryKey, Propagator]
}

// NewRegistry creates a registry holding at most size models for ttl.
func NewRegistry(backend Backend, size int, ttl time.Duration) *Registry {
	if size <= 0 {
		size = 50000
	}
	if backend == "" {
		backend = BackendAuto
	}
	return &Registry{
		backend: backend,
		models:  expirable.NewLRU[registryKey, Propagator](size, nil, ttl),
	}
}

// Backend returns the backend used for new models.
func (r *Registry) Backend() Backend { return r.backend }

// Get returns the propagator for es, initializing it on first use.
// Initialization failures are not cached.
func (r *Registry) Get(es tle.ElementSet) (Propagator, error) {
	key := registryKey{id: es.CatalogID, epoch: es.Epoch.UnixNano(), backend: r.backend}
	if p, ok := r.models.Get(key); ok {
		metrics.RecordRegistryLookup(true)
		return p, nil
	}
	metrics.RecordRegistryLookup(false)

	p, err := New(es, r.backend)
	if err != nil {
		return nil, err
	}
	r.models.Add(key, p)
	return p, nil
}

// Len returns the number of cached models.
func (r *Registry) Len() int { return r.models.Len() }
