package transfer

import "sync"

// TargetMap remembers where each control-side cached file was actually
// placed on the target. It's scoped to one client/connection, last write
// wins, and it's only consulted for introspection — never for correctness
// decisions.
type TargetMap struct {
	lock  sync.Mutex
	paths map[string]string
}

// NewTargetMap returns an empty TargetMap.
func NewTargetMap() *TargetMap {
	return &TargetMap{paths: map[string]string{}}
}

// Record stores the target-side location of a control-side path.
func (m *TargetMap) Record(controlPath, targetPath string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.paths[controlPath] = targetPath
}

// Get returns where `controlPath` was placed on the target.
func (m *TargetMap) Get(controlPath string) (string, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	path, ok := m.paths[controlPath]
	return path, ok
}

// Snapshot returns a copy of the tracked mappings. The map is copied
// because maps are reference types, and handing out the internal one
// wouldn't be threadsafe.
func (m *TargetMap) Snapshot() map[string]string {
	m.lock.Lock()
	defer m.lock.Unlock()

	snapshot := map[string]string{}
	for k, v := range m.paths {
		snapshot[k] = v
	}
	return snapshot
}
