package entity

import (
	"image"
	"sync"
)

// Fingerprint отпечаток проблемы: тип, слой и идентичность геометрии.
type Fingerprint struct {
	Type       IssueType
	LayerIndex int
	Bounds     image.Rectangle
	Geometry   uint64
}

// IgnoredIssues набор отпечатков, подавляющий совпадающие находки.
// Живёт между запусками детекции, пока его явно не очистят.
type IgnoredIssues struct {
	mu    sync.RWMutex
	items map[Fingerprint]struct{}
}

// NewIgnoredIssues создаёт пустой набор.
func NewIgnoredIssues() *IgnoredIssues {
	return &IgnoredIssues{items: make(map[Fingerprint]struct{})}
}

// Add добавляет отпечаток проблемы.
func (s *IgnoredIssues) Add(issue Issue) {
	s.mu.Lock()
	s.items[issue.Fingerprint()] = struct{}{}
	s.mu.Unlock()
}

// Remove убирает отпечаток проблемы.
func (s *IgnoredIssues) Remove(issue Issue) {
	s.mu.Lock()
	delete(s.items, issue.Fingerprint())
	s.mu.Unlock()
}

// Contains проверяет, подавлена ли проблема. Нулевой набор ничего не подавляет.
func (s *IgnoredIssues) Contains(issue Issue) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return false
	}
	_, ok := s.items[issue.Fingerprint()]
	return ok
}

// Len количество подавленных отпечатков.
func (s *IgnoredIssues) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear очищает набор.
func (s *IgnoredIssues) Clear() {
	s.mu.Lock()
	s.items = make(map[Fingerprint]struct{})
	s.mu.Unlock()
}
