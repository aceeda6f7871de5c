package detection

import (
	"slices"
	"sync"

	"layer-inspector/internal/domain/entity"
)

// issueAggregator неупорядоченный набор находок текущего запуска.
// Проверка по списку игнорируемых выполняется в момент добавления.
type issueAggregator struct {
	mu      sync.Mutex
	ignored *entity.IgnoredIssues
	issues  entity.MainIssues
}

func newIssueAggregator(ignored *entity.IgnoredIssues) *issueAggregator {
	return &issueAggregator{ignored: ignored}
}

// add создаёт для проблемы собственную группу. Возвращает false, если проблема подавлена.
func (a *issueAggregator) add(issue entity.Issue) bool {
	if a.ignored.Contains(issue) {
		issuesSuppressed.Inc()
		return false
	}
	issuesDetected.WithLabelValues(issue.Type.String()).Inc()

	a.mu.Lock()
	a.issues = append(a.issues, entity.NewMainIssue(issue.Type, issue))
	a.mu.Unlock()
	return true
}

// result отсортированная копия накопленного.
func (a *issueAggregator) result() entity.MainIssues {
	a.mu.Lock()
	out := slices.Clone(a.issues)
	a.mu.Unlock()
	out.Sort()
	return out
}
