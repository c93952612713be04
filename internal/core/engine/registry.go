package engine

import (
	"sort"
	"sync"

	"github.com/pulseboard/pulseboard-backend-go/internal/core/types"
)

// registry is the in-memory index of registered entities. It is the
// authority on what is currently live; the database holds the durable
// copy.
type registry struct {
	mu          sync.RWMutex
	entities    map[string]*types.Entity
	byDashboard map[string]map[string]struct{}
}

func newRegistry() *registry {
	return &registry{
		entities:    make(map[string]*types.Entity),
		byDashboard: make(map[string]map[string]struct{}),
	}
}

// put inserts or replaces an entity.
func (r *registry) put(ent *types.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.entities[ent.ID]; ok {
		r.dropDashboardIndex(previous)
	}
	r.entities[ent.ID] = ent
	if ent.DashboardID != "" {
		idx, ok := r.byDashboard[ent.DashboardID]
		if !ok {
			idx = make(map[string]struct{})
			r.byDashboard[ent.DashboardID] = idx
		}
		idx[ent.ID] = struct{}{}
	}
}

// get returns the entity and whether it is registered.
func (r *registry) get(id string) (*types.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[id]
	return ent, ok
}

// remove drops an entity. It returns the removed entity, if any.
func (r *registry) remove(id string) (*types.Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.entities[id]
	if !ok {
		return nil, false
	}
	delete(r.entities, id)
	r.dropDashboardIndex(ent)
	return ent, true
}

func (r *registry) dropDashboardIndex(ent *types.Entity) {
	if ent.DashboardID == "" {
		return
	}
	if idx, ok := r.byDashboard[ent.DashboardID]; ok {
		delete(idx, ent.ID)
		if len(idx) == 0 {
			delete(r.byDashboard, ent.DashboardID)
		}
	}
}

// dashboardWidgets returns the widget IDs of a dashboard in stable
// order.
func (r *registry) dashboardWidgets(dashboardID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byDashboard[dashboardID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// list returns all registered entity IDs in stable order.
func (r *registry) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}
