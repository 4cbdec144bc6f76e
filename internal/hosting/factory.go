package hosting

import (
	"fmt"
	"sync"
)

// Factory constructs a Provider by name, e.g. "github" or "gitlab".
type Factory func() (Provider, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register adds a named provider factory. Hosting adapter packages
// (internal/hosting/github, internal/hosting/gitlab) call this from an
// init() func, the same self-registration pattern the teacher lineage
// uses for its hosting backends.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New constructs the provider registered under name.
func New(name string) (Provider, error) {
	registryMu.Lock()
	f, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("hosting: no provider registered for %q", name)
	}
	return f()
}
