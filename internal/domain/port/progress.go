package port

// Progress получатель прогресса длительной операции.
// Отмена передаётся через context.Context.
type Progress interface {
	// Reset начинает новый этап
	Reset(label string, total, start int)

	// Increment отмечает одну выполненную единицу работы
	Increment()
}
