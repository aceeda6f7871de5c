package app

import (
	"context"
	"errors"
	"fmt"

	"layer-inspector/internal/domain/entity"
	"layer-inspector/internal/domain/port"
)

var (
	// ErrNoReport у пользователя ещё нет отчёта, к которому относится номер проблемы.
	ErrNoReport = errors.New("no report yet")
	// ErrIssueNotFound номер проблемы вне отчёта.
	ErrIssueNotFound = errors.New("issue not found in report")
)

type UserService struct {
	repo port.UserRepository
}

func NewUserService(repo port.UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) Get(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.repo.Get(ctx, userID, chatID)
}

func (s *UserService) SetState(ctx context.Context, userID, chatID int64, state entity.UserState) (*entity.User, error) {
	return s.repo.Update(ctx, userID, chatID, func(u *entity.User) error {
		u.SetState(state)
		return nil
	})
}

func (s *UserService) BeginCheck(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.SetState(ctx, userID, chatID, entity.StateAwaitingArchive)
}

func (s *UserService) Cancel(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.SetState(ctx, userID, chatID, entity.StateMainMenu)
}

// RememberReport сохраняет отчёт как последний и возвращает пользователя в меню.
func (s *UserService) RememberReport(ctx context.Context, userID, chatID int64, report *entity.InspectionReport) (*entity.User, error) {
	return s.repo.Update(ctx, userID, chatID, func(u *entity.User) error {
		u.LastReport = report
		u.SetState(entity.StateMainMenu)
		return nil
	})
}

// Ignore подавляет n-ю проблему последнего отчёта в следующих проверках.
func (s *UserService) Ignore(ctx context.Context, userID, chatID int64, n int) (entity.Issue, error) {
	var issue entity.Issue
	_, err := s.repo.Update(ctx, userID, chatID, func(u *entity.User) error {
		if u.LastReport == nil {
			return ErrNoReport
		}
		found, ok := u.LastReport.Issue(n)
		if !ok {
			return fmt.Errorf("issue %d: %w", n, ErrIssueNotFound)
		}
		u.Ignored.Add(found)
		issue = found
		return nil
	})
	if err != nil {
		return entity.Issue{}, err
	}
	return issue, nil
}

// ClearIgnored очищает список игнорируемых и возвращает, сколько было в нём записей.
func (s *UserService) ClearIgnored(ctx context.Context, userID, chatID int64) (int, error) {
	var cleared int
	_, err := s.repo.Update(ctx, userID, chatID, func(u *entity.User) error {
		cleared = u.Ignored.Len()
		u.Ignored.Clear()
		return nil
	})
	return cleared, err
}
