package entity

import (
	"cmp"
	"slices"
)

// MainIssue группа однотипных проблем на непрерывном диапазоне слоёв.
type MainIssue struct {
	Type            IssueType `json:"type"`
	StartLayerIndex int       `json:"start_layer_index"`
	EndLayerIndex   int       `json:"end_layer_index"`
	Issues          []Issue   `json:"issues"`
}

// NewMainIssue создаёт группу; диапазон слоёв вычисляется по входящим проблемам.
func NewMainIssue(t IssueType, issues ...Issue) MainIssue {
	m := MainIssue{Type: t, Issues: issues}
	for i, issue := range issues {
		if i == 0 || issue.LayerIndex < m.StartLayerIndex {
			m.StartLayerIndex = issue.LayerIndex
		}
		if i == 0 || issue.LayerIndex > m.EndLayerIndex {
			m.EndLayerIndex = issue.LayerIndex
		}
	}
	return m
}

// IsIssueInBetween проверяет, попадает ли слой в диапазон группы.
func (m MainIssue) IsIssueInBetween(layerIndex int) bool {
	return layerIndex >= m.StartLayerIndex && layerIndex <= m.EndLayerIndex
}

// Area площадь наибольшей проблемы группы.
func (m MainIssue) Area() float64 {
	var area float64
	for _, issue := range m.Issues {
		area = max(area, issue.Area)
	}
	return area
}

// MainIssues упорядоченный результат детекции.
type MainIssues []MainIssue

// Sort упорядочивает по типу, начальному слою и убыванию площади.
// Остальные ключи нужны только для воспроизводимого порядка при равенстве.
func (ms MainIssues) Sort() {
	slices.SortStableFunc(ms, compareMainIssues)
}

func compareMainIssues(a, b MainIssue) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	if c := cmp.Compare(a.StartLayerIndex, b.StartLayerIndex); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Area(), a.Area()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.EndLayerIndex, b.EndLayerIndex); c != 0 {
		return c
	}
	if len(a.Issues) == 0 || len(b.Issues) == 0 {
		return cmp.Compare(len(a.Issues), len(b.Issues))
	}
	ra, rb := a.Issues[0].Bounds, b.Issues[0].Bounds
	if c := cmp.Compare(ra.Min.Y, rb.Min.Y); c != 0 {
		return c
	}
	if c := cmp.Compare(ra.Min.X, rb.Min.X); c != 0 {
		return c
	}
	return cmp.Compare(a.Issues[0].Fingerprint().Geometry, b.Issues[0].Fingerprint().Geometry)
}

// Issues разворачивает группы в плоский список.
func (ms MainIssues) Issues() []Issue {
	var result []Issue
	for _, m := range ms {
		result = append(result, m.Issues...)
	}
	return result
}

// IssuesByType возвращает все проблемы указанного типа.
func (ms MainIssues) IssuesByType(t IssueType) []Issue {
	var result []Issue
	for _, m := range ms {
		if m.Type != t {
			continue
		}
		result = append(result, m.Issues...)
	}
	return result
}

// IssuesByTypeAt возвращает проблемы указанного типа на слое.
func (ms MainIssues) IssuesByTypeAt(t IssueType, layerIndex int) []Issue {
	var result []Issue
	for _, m := range ms {
		if m.Type != t || !m.IsIssueInBetween(layerIndex) {
			continue
		}
		for _, issue := range m.Issues {
			if issue.LayerIndex == layerIndex {
				result = append(result, issue)
			}
		}
	}
	return result
}

// IssuesAt возвращает все проблемы на слое.
func (ms MainIssues) IssuesAt(layerIndex int) []Issue {
	var result []Issue
	for _, m := range ms {
		if !m.IsIssueInBetween(layerIndex) {
			continue
		}
		for _, issue := range m.Issues {
			if issue.LayerIndex == layerIndex {
				result = append(result, issue)
			}
		}
	}
	return result
}

// CountByType считает проблемы каждого типа.
func (ms MainIssues) CountByType() map[IssueType]int {
	counts := make(map[IssueType]int)
	for _, m := range ms {
		counts[m.Type] += len(m.Issues)
	}
	return counts
}
