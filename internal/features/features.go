// Package features holds runtime feature flags: toggles for optional
// behavior that operators flip without redeploying.
package features

import "sync"

// Flag names.
const (
	// FeatureCacheEnabled gates the feature-row cache.
	FeatureCacheEnabled = "cache_enabled"
	// FeatureEventHooksEnabled gates event-driven hooks.
	FeatureEventHooksEnabled = "event_hooks_enabled"
	// FeatureParallelBuild gates the bounded worker pool for builds.
	FeatureParallelBuild = "parallel_build"
)

// FeatureFlag is one named toggle.
type FeatureFlag struct {
	Name        string
	Enabled     bool
	Description string
}

// Manager holds the registered flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]FeatureFlag
}

// NewManager creates an empty flag manager.
func NewManager() *Manager {
	return &Manager{flags: make(map[string]FeatureFlag)}
}

// Register adds a flag with its initial state, replacing any flag of the
// same name.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[name] = FeatureFlag{Name: name, Enabled: enabled, Description: description}
}

// IsEnabled reports whether a flag is on. Unregistered flags are off.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags[name].Enabled
}

// Enable turns a registered flag on.
func (m *Manager) Enable(name string) {
	m.setEnabled(name, true)
}

// Disable turns a registered flag off.
func (m *Manager) Disable(name string) {
	m.setEnabled(name, false)
}

func (m *Manager) setEnabled(name string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if flag, ok := m.flags[name]; ok {
		flag.Enabled = enabled
		m.flags[name] = flag
	}
}

// GetAll returns a snapshot of every registered flag.
func (m *Manager) GetAll() map[string]FeatureFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]FeatureFlag, len(m.flags))
	for name, flag := range m.flags {
		snapshot[name] = flag
	}
	return snapshot
}

// Shutdown drops all registered flags.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags = make(map[string]FeatureFlag)
}
