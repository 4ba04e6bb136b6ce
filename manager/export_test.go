package manager

import "github.com/eak1mov/go-tilestream/tile"

func (m *Manager) DestroyForTest(idx tile.Index) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroy(idx)
}
