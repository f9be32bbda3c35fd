// Package hooks is the observation-point registry a model exposes to
// instrumentation. Hooks run synchronously inside the model's forward pass.
package hooks

import (
	"sync"

	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/tensor"
)

// Output is what a site emits. Composite sites (attention) put their main
// result in Primary and auxiliary tensors in Extra.
type Output struct {
	Primary *tensor.Tensor
	Extra   []*tensor.Tensor
}

// Func observes one site execution. It must not retain out beyond the call
// unless it copies.
type Func func(site string, out Output)

type entry struct {
	id uint64
	fn Func
}

// Registry maps known site names to registered hooks.
type Registry struct {
	mu    sync.Mutex
	sites []string
	known map[string]bool
	hooks map[string][]entry
	next  uint64
}

func NewRegistry(sites []string) *Registry {
	r := &Registry{
		sites: append([]string(nil), sites...),
		known: make(map[string]bool, len(sites)),
		hooks: make(map[string][]entry),
	}
	for _, s := range sites {
		r.known[s] = true
	}
	return r
}

// Sites lists every registrable site in execution order.
func (r *Registry) Sites() []string {
	return append([]string(nil), r.sites...)
}

func (r *Registry) HasSite(site string) bool {
	return r.known[site]
}

// RegisterHook attaches fn to site. Unknown sites are a configuration error.
func (r *Registry) RegisterHook(site string, fn Func) (*Handle, error) {
	if !r.known[site] {
		return nil, faults.Configuration("register", "unknown site %q", site)
	}
	if fn == nil {
		return nil, faults.Configuration("register", "nil hook for site %q", site)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.hooks[site] = append(r.hooks[site], entry{id: r.next, fn: fn})
	return &Handle{reg: r, site: site, id: r.next}, nil
}

// HookCount is the number of live hooks across all sites.
func (r *Registry) HookCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, hs := range r.hooks {
		n += len(hs)
	}
	return n
}

// Active reports whether any hook is attached to site.
func (r *Registry) Active(site string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hooks[site]) > 0
}

// Fire invokes the hooks of site in registration order.
func (r *Registry) Fire(site string, out Output) {
	r.mu.Lock()
	hs := append([]entry(nil), r.hooks[site]...)
	r.mu.Unlock()

	for _, h := range hs {
		h.fn(site, out)
	}
}

func (r *Registry) remove(site string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs := r.hooks[site]
	for i, h := range hs {
		if h.id == id {
			r.hooks[site] = append(hs[:i:i], hs[i+1:]...)
			if len(r.hooks[site]) == 0 {
				delete(r.hooks, site)
			}
			return true
		}
	}
	return false
}

// Handle detaches one registered hook.
type Handle struct {
	reg  *Registry
	site string
	id   uint64
}

func (h *Handle) Site() string {
	return h.site
}

// Remove detaches the hook. It reports false if already removed.
func (h *Handle) Remove() bool {
	return h.reg.remove(h.site, h.id)
}
