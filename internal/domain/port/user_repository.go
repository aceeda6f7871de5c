package port

import (
	"context"

	"layer-inspector/internal/domain/entity"
)

// UserRepository интерфейс хранилища пользователей
type UserRepository interface {
	// Get возвращает пользователя по ID, создаёт нового если не найден
	Get(ctx context.Context, userID, chatID int64) (*entity.User, error)

	// Save сохраняет состояние пользователя
	Save(ctx context.Context, user *entity.User) error

	// Update применяет fn к пользователю под блокировкой хранилища.
	// Если fn вернула ошибку, изменения всё равно остаются на объекте, ошибка пробрасывается.
	Update(ctx context.Context, userID, chatID int64, fn func(*entity.User) error) (*entity.User, error)

	// Delete забывает пользователя вместе с отчётом и списком игнорируемых
	Delete(ctx context.Context, userID int64) error
}
