package app

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/require"

	"layer-inspector/internal/domain/entity"
	"layer-inspector/internal/infrastructure/storage"
)

func TestUserService_BeginCheckAndCancel(t *testing.T) {
	repo := storage.NewMemoryUserRepository()
	svc := NewUserService(repo)
	ctx := context.Background()

	user, err := svc.BeginCheck(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateAwaitingArchive, user.State)

	user, err = svc.Cancel(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, user.State)
}

func TestUserService_SetState(t *testing.T) {
	repo := storage.NewMemoryUserRepository()
	svc := NewUserService(repo)
	ctx := context.Background()

	user, err := svc.SetState(ctx, 2, 20, entity.StateProcessing)
	require.NoError(t, err)
	require.Equal(t, entity.StateProcessing, user.State)
}

func reportWith(issues ...entity.Issue) *entity.InspectionReport {
	var ms entity.MainIssues
	for _, issue := range issues {
		ms = append(ms, entity.NewMainIssue(issue.Type, issue))
	}
	ms.Sort()
	return &entity.InspectionReport{ID: "r1", Issues: ms}
}

func TestUserService_IgnoreAndClear(t *testing.T) {
	svc := NewUserService(storage.NewMemoryUserRepository())
	ctx := context.Background()

	_, err := svc.Ignore(ctx, 3, 30, 1)
	require.ErrorIs(t, err, ErrNoReport)

	empty := entity.NewLayerIssue(entity.IssueEmptyLayer, &entity.Layer{Index: 4})
	island := entity.NewPointsIssue(entity.IssueIsland, 2, []image.Point{image.Pt(1, 1)}, image.Rectangle{})
	user, err := svc.RememberReport(ctx, 3, 30, reportWith(island, empty))
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, user.State)

	_, err = svc.Ignore(ctx, 3, 30, 3)
	require.ErrorIs(t, err, ErrIssueNotFound)

	got, err := svc.Ignore(ctx, 3, 30, 2)
	require.NoError(t, err)
	require.Equal(t, island, got)
	require.True(t, user.Ignored.Contains(island))
	require.False(t, user.Ignored.Contains(empty))

	cleared, err := svc.ClearIgnored(ctx, 3, 30)
	require.NoError(t, err)
	require.Equal(t, 1, cleared)
	require.Zero(t, user.Ignored.Len())
}
