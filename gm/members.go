package gm

import (
	"slices"
	"strings"
	"sync"
)

type groupMembers struct {
	members []string
	mu      sync.Mutex
}

func newGroupMembers() *groupMembers {
	return &groupMembers{members: make([]string, 0)}
}

func (m *groupMembers) add(id string) {
	defer m.mu.Unlock()
	m.mu.Lock()

	if slices.Contains(m.members, id) {
		return
	}

	m.members = append(m.members, id)

	slices.SortFunc(m.members, func(a string, b string) int {
		return strings.Compare(a, b)
	})
}

func (m *groupMembers) remove(id string) {
	defer m.mu.Unlock()
	m.mu.Lock()

	for i, v := range m.members {
		if v == id {
			m.members = append(m.members[:i], m.members[i+1:]...)
			return
		}
	}
}

func (m *groupMembers) list() []string {
	defer m.mu.Unlock()
	m.mu.Lock()

	return slices.Clone(m.members)
}
