package entity

// UserState состояние пользователя в диалоге
type UserState string

const (
	StateMainMenu        UserState = "main_menu"        // В главном меню
	StateAwaitingArchive UserState = "awaiting_archive" // Ожидание архива со слоями
	StateProcessing      UserState = "processing"       // Идёт детекция
)

// User представляет пользователя бота
type User struct {
	ID     int64     // Telegram User ID
	ChatID int64     // Telegram Chat ID
	State  UserState // Текущее состояние пользователя

	Ignored    *IgnoredIssues    // Подавленные пользователем проблемы
	LastReport *InspectionReport // Последний отчёт, по нему работает /ignore
}

// NewUser создаёт нового пользователя с начальным состоянием
func NewUser(userID, chatID int64) *User {
	return &User{
		ID:      userID,
		ChatID:  chatID,
		State:   StateMainMenu,
		Ignored: NewIgnoredIssues(),
	}
}

// SetState обновляет состояние пользователя
func (u *User) SetState(state UserState) {
	u.State = state
}
