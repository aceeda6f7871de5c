package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	app "layer-inspector/internal/application"
	"layer-inspector/internal/domain/entity"
)

const (
	msgStart = `👋 Привет! Я проверяю стопки слоёв 3D-печати на дефекты.

📦 Пришлите zip-архив с изображениями слоёв (png, bmp, tiff, jpg), и я найду острова, нависания, ловушки смолы и присоски.

📋 Команды:
/check — начать проверку
/ignore N — не показывать проблему N из последнего отчёта
/clear — очистить список игнорируемых
/help — справка
/cancel — отменить текущую операцию`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Отправьте /check
2️⃣ Пришлите zip-архив со слоями, файлы упорядочиваются по номеру в имени
3️⃣ Получите сводку и полный отчёт в JSON

💡 Рекомендации:
• Слои должны быть одного размера
• Белый цвет означает засвеченный пиксель

📋 Команды:
/check — начать проверку
/ignore N — скрыть проблему N
/clear — показать все проблемы снова
/cancel — отменить операцию`

	msgAwaitingArchive  = "📦 Пришлите zip-архив с изображениями слоёв."
	msgCancelled        = "❌ Операция отменена. Отправьте /check для новой проверки."
	msgSendArchive      = "📦 Пожалуйста, пришлите zip-архив с изображениями слоёв."
	msgUnknownCommand   = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing       = "⏳ Проверяю слои..."
	msgAlreadyRunning   = "⏳ Проверка уже идёт. Дождитесь результата или отправьте /cancel."
	msgNoIssues         = "✅ Проблемы не обнаружены."
	msgProcessingError  = "⚠️ Не удалось обработать архив. Проверьте, что внутри изображения слоёв одного размера."
	msgIgnoreUsage      = "Использование: /ignore N, где N номер проблемы из последнего отчёта."
	msgNoReport         = "Сначала выполните проверку: /check."
	msgIssueNotFound    = "В последнем отчёте нет проблемы с таким номером."
	msgIgnored          = "🙈 Проблема %d (%s, слой %d) больше не будет показываться."
	msgCleared          = "🧹 Список игнорируемых очищен, записей: %d."
	msgInternalError    = "⚠️ Внутренняя ошибка. Попробуйте ещё раз."
	summaryIssueLimit   = 20
	maxArchiveSizeBytes = 20 << 20
)

// botAPI часть tgbotapi.BotAPI, которой пользуется бот.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot представляет Telegram-бота
type Bot struct {
	api         botAPI
	token       string
	users       *app.UserService
	inspections *app.InspectionService
	logger      *slog.Logger

	// download скачивает файл по его ID
	download func(ctx context.Context, fileID string) ([]byte, error)

	mu      sync.Mutex
	running map[int64]context.CancelFunc
	wg      sync.WaitGroup
}

// NewBot создаёт нового бота
func NewBot(token string, users *app.UserService, inspections *app.InspectionService, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("authorized", "account", api.Self.UserName)
	return newBot(api, token, users, inspections, logger), nil
}

func newBot(api botAPI, token string, users *app.UserService, inspections *app.InspectionService, logger *slog.Logger) *Bot {
	b := &Bot{
		api:         api,
		token:       token,
		users:       users,
		inspections: inspections,
		logger:      logger,
		running:     make(map[int64]context.CancelFunc),
	}
	b.download = b.downloadFile
	return b
}

// Run запускает основной цикл обработки сообщений до отмены ctx
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	// Обработка команд
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	// Обработка архива
	if msg.Document != nil {
		b.handleDocument(ctx, msg)
		return
	}

	b.sendMessage(msg.Chat.ID, msgSendArchive)
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID, chatID := msg.From.ID, msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.setState(ctx, userID, chatID, entity.StateMainMenu)
		b.sendMessage(chatID, msgStart)

	case "help":
		b.sendMessage(chatID, msgHelp)

	case "check":
		if _, err := b.users.BeginCheck(ctx, userID, chatID); err != nil {
			b.fail(chatID, "begin check", err)
			return
		}
		b.sendMessage(chatID, msgAwaitingArchive)

	case "cancel":
		b.cancelRun(userID)
		b.setState(ctx, userID, chatID, entity.StateMainMenu)
		b.sendMessage(chatID, msgCancelled)

	case "ignore":
		b.handleIgnore(ctx, msg)

	case "clear":
		cleared, err := b.users.ClearIgnored(ctx, userID, chatID)
		if err != nil {
			b.fail(chatID, "clear ignored", err)
			return
		}
		b.sendMessage(chatID, fmt.Sprintf(msgCleared, cleared))

	default:
		b.sendMessage(chatID, msgUnknownCommand)
	}
}

func (b *Bot) handleIgnore(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	n, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
	if err != nil || n < 1 {
		b.sendMessage(chatID, msgIgnoreUsage)
		return
	}

	issue, err := b.users.Ignore(ctx, msg.From.ID, chatID, n)
	switch {
	case errors.Is(err, app.ErrNoReport):
		b.sendMessage(chatID, msgNoReport)
	case errors.Is(err, app.ErrIssueNotFound):
		b.sendMessage(chatID, msgIssueNotFound)
	case err != nil:
		b.fail(chatID, "ignore issue", err)
	default:
		b.sendMessage(chatID, fmt.Sprintf(msgIgnored, n, issue.Type, issue.LayerIndex))
	}
}

// handleDocument скачивает архив и запускает проверку в отдельной горутине
func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	userID, chatID := msg.From.ID, msg.Chat.ID
	doc := msg.Document
	if !strings.HasSuffix(strings.ToLower(doc.FileName), ".zip") || doc.FileSize > maxArchiveSizeBytes {
		b.sendMessage(chatID, msgSendArchive)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	if !b.startRun(userID, cancel) {
		cancel()
		b.sendMessage(chatID, msgAlreadyRunning)
		return
	}
	b.sendMessage(chatID, msgProcessing)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.finishRun(userID)
		b.inspect(runCtx, userID, chatID, doc.FileID)
	}()
}

func (b *Bot) inspect(ctx context.Context, userID, chatID int64, fileID string) {
	logger := b.logger.With("user_id", userID)

	data, err := b.download(ctx, fileID)
	if err != nil {
		logger.Error("download archive", "error", err)
		b.sendMessage(chatID, msgProcessingError)
		b.setState(context.WithoutCancel(ctx), userID, chatID, entity.StateMainMenu)
		return
	}

	report, err := b.inspections.InspectArchive(ctx, userID, chatID, data)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("inspect archive", "error", err)
		b.sendMessage(chatID, msgProcessingError)
		return
	}
	if ctx.Err() != nil {
		// отменено через /cancel: частичный отчёт не отправляем
		return
	}

	if !report.HasIssues() {
		b.sendMessage(chatID, msgNoIssues)
		return
	}
	b.sendMessage(chatID, report.Summary(summaryIssueLimit))
	b.sendReport(chatID, report)
}

// sendReport отправляет полный отчёт JSON-документом
func (b *Bot) sendReport(chatID int64, report *entity.InspectionReport) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		b.logger.Error("marshal report", "report_id", report.ID, "error", err)
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "report-" + report.ID + ".json", Bytes: data})
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("send report", "report_id", report.ID, "error", err)
	}
}

func (b *Bot) startRun(userID int64, cancel context.CancelFunc) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, busy := b.running[userID]; busy {
		return false
	}
	b.running[userID] = cancel
	return true
}

func (b *Bot) finishRun(userID int64) {
	b.mu.Lock()
	cancel, ok := b.running[userID]
	delete(b.running, userID)
	b.mu.Unlock()
	if ok {
		cancel()
	}
}

func (b *Bot) cancelRun(userID int64) {
	b.mu.Lock()
	cancel, ok := b.running[userID]
	b.mu.Unlock()
	if ok {
		cancel()
	}
}

func (b *Bot) setState(ctx context.Context, userID, chatID int64, state entity.UserState) {
	if _, err := b.users.SetState(ctx, userID, chatID, state); err != nil {
		b.logger.Error("set user state", "user_id", userID, "state", state, "error", err)
	}
}

func (b *Bot) fail(chatID int64, op string, err error) {
	b.logger.Error(op, "chat_id", chatID, "error", err)
	b.sendMessage(chatID, msgInternalError)
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(b.token), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > maxArchiveSizeBytes {
		return nil, fmt.Errorf("read file: larger than %d bytes", maxArchiveSizeBytes)
	}

	return data, nil
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("send message", "chat_id", chatID, "error", err)
	}
}
