package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dotsetgreg/memvault/pkg/logger"
	"github.com/dotsetgreg/memvault/pkg/vecstore"
)

const resolverPageSize = 100

// StoreResolver memoizes the backing vector store's identifier for the
// process lifetime. Resolution happens at most once: the id is either
// found by paging the store listing for a name match or created fresh.
// Under any number of concurrent first resolutions exactly one find-or-
// create round trip reaches the service and every caller observes the
// same id.
type StoreResolver struct {
	client vecstore.Client
	name   string

	mu     sync.Mutex
	cached atomic.Pointer[string]
}

// NewStoreResolver builds a resolver for the store named name. A non-empty
// knownID seeds the cache and skips resolution entirely.
func NewStoreResolver(client vecstore.Client, name, knownID string) *StoreResolver {
	r := &StoreResolver{client: client, name: name}
	if knownID != "" {
		r.cached.Store(&knownID)
	}
	return r
}

// Cached reports whether the identifier is already resolved.
func (r *StoreResolver) Cached() bool {
	return r.cached.Load() != nil
}

// Resolve returns the store id, resolving it on first use. The common case
// is a lock-free cached read; losers of the race to the lock re-check the
// cache before touching the service. Transport errors propagate and leave
// the cache unset, so the next call retries.
func (r *StoreResolver) Resolve(ctx context.Context) (string, error) {
	if id := r.cached.Load(); id != nil {
		return *id, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id := r.cached.Load(); id != nil {
		return *id, nil
	}

	logger.InfoCF("resolver", "Vector store id not cached, resolving",
		map[string]interface{}{"store_name": r.name})

	after := ""
	for {
		page, err := r.client.ListStores(ctx, resolverPageSize, after)
		if err != nil {
			return "", fmt.Errorf("list vector stores: %w", err)
		}
		for _, st := range page.Stores {
			if st.Name == r.name {
				id := st.ID
				r.cached.Store(&id)
				logger.InfoCF("resolver", "Found existing vector store",
					map[string]interface{}{"store_id": id})
				return id, nil
			}
		}
		if !page.HasMore || page.LastID == "" {
			break
		}
		after = page.LastID
	}

	created, err := r.client.CreateStore(ctx, r.name)
	if err != nil {
		return "", fmt.Errorf("create vector store %q: %w", r.name, err)
	}
	id := created.ID
	r.cached.Store(&id)
	logger.InfoCF("resolver", "Created new vector store",
		map[string]interface{}{"store_id": id})
	return id, nil
}
