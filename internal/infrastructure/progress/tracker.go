// Package progress реализация port.Progress с записью в журнал.
package progress

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"layer-inspector/internal/domain/port"
)

// Tracker считает выполненные единицы текущего этапа и пишет в журнал
// не чаще одного раза за interval. Increment безопасен для конкурентного вызова.
type Tracker struct {
	logger   *slog.Logger
	interval time.Duration

	mu     sync.Mutex
	label  string
	total  int
	start  int
	logged time.Time

	done atomic.Int64
}

// NewTracker создаёт трекер; interval <= 0 отключает промежуточные записи.
func NewTracker(logger *slog.Logger, interval time.Duration) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger, interval: interval}
}

// Reset начинает новый этап.
func (t *Tracker) Reset(label string, total, start int) {
	t.mu.Lock()
	t.label, t.total, t.start = label, total, start
	t.logged = time.Now()
	t.mu.Unlock()
	t.done.Store(int64(start))

	t.logger.Info("stage started", "stage", label, "total", total, "start", start)
}

// Increment отмечает одну выполненную единицу.
func (t *Tracker) Increment() {
	done := t.done.Add(1)
	if t.interval <= 0 {
		return
	}

	t.mu.Lock()
	if time.Since(t.logged) < t.interval {
		t.mu.Unlock()
		return
	}
	t.logged = time.Now()
	label, total := t.label, t.total
	t.mu.Unlock()

	t.logger.Debug("stage progress", "stage", label, "done", done, "total", total)
}

// Snapshot текущий этап и число выполненных единиц.
func (t *Tracker) Snapshot() (label string, done, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.label, int(t.done.Load()), t.total
}

// Проверка реализации интерфейса
var _ port.Progress = (*Tracker)(nil)
