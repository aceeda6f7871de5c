package storage

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"layer-inspector/internal/domain/entity"
	"layer-inspector/internal/domain/port"
)

var usersTotal = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "layer_inspector",
	Subsystem: "bot",
	Name:      "users",
	Help:      "Users known to the in-memory repository.",
})

// MemoryUserRepository in-memory хранилище пользователей
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[int64]*entity.User
}

// NewMemoryUserRepository создаёт новое in-memory хранилище
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[int64]*entity.User),
	}
}

// Get возвращает пользователя по ID, создаёт нового если не найден
func (r *MemoryUserRepository) Get(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	user, exists := r.users[userID]
	r.mu.RUnlock()
	if exists {
		return user, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(userID, chatID), nil
}

// getLocked повторно проверяет наличие: между RUnlock и Lock пользователя мог создать другой вызов.
func (r *MemoryUserRepository) getLocked(userID, chatID int64) *entity.User {
	if user, exists := r.users[userID]; exists {
		return user
	}
	user := entity.NewUser(userID, chatID)
	r.users[userID] = user
	usersTotal.Inc()
	return user
}

// Save сохраняет состояние пользователя
func (r *MemoryUserRepository) Save(ctx context.Context, user *entity.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.users[user.ID]; !exists {
		usersTotal.Inc()
	}
	r.users[user.ID] = user
	r.mu.Unlock()

	return nil
}

// Update применяет fn к пользователю под блокировкой хранилища
func (r *MemoryUserRepository) Update(ctx context.Context, userID, chatID int64, fn func(*entity.User) error) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.getLocked(userID, chatID)
	if err := fn(user); err != nil {
		return user, err
	}
	return user, nil
}

// Delete удаляет пользователя
func (r *MemoryUserRepository) Delete(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.users[userID]; exists {
		delete(r.users, userID)
		usersTotal.Dec()
	}
	r.mu.Unlock()

	return nil
}

// Проверка реализации интерфейса
var _ port.UserRepository = (*MemoryUserRepository)(nil)
