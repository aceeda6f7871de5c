package entity

import (
	"encoding/json"
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

func square(x0, y0, x1, y1 int) Contour {
	return Contour{{x0, y0}, {x0, y1}, {x1, y1}, {x1, y0}}
}

func TestNewPointsIssue_AreaAndBounds(t *testing.T) {
	pts := []image.Point{{3, 4}, {5, 4}, {4, 6}}
	issue := NewPointsIssue(IssueIsland, 2, pts, image.Rectangle{})
	require.Equal(t, 3.0, issue.Area)
	require.Equal(t, image.Rect(3, 4, 6, 7), issue.Bounds)
	require.Equal(t, PayloadPoints, issue.Payload.Kind)
}

func TestIssueFingerprint_DependsOnGeometry(t *testing.T) {
	a := NewPointsIssue(IssueIsland, 1, []image.Point{{1, 1}, {2, 1}}, image.Rect(0, 0, 4, 4))
	b := NewPointsIssue(IssueIsland, 1, []image.Point{{1, 1}, {2, 2}}, image.Rect(0, 0, 4, 4))
	require.Equal(t, a.Fingerprint(), a.Fingerprint())
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := a
	c.LayerIndex = 2
	require.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestIgnoredIssues(t *testing.T) {
	var nilSet *IgnoredIssues
	issue := NewPointsIssue(IssueTouchingBound, 0, []image.Point{{0, 0}}, image.Rectangle{})
	require.False(t, nilSet.Contains(issue))

	set := NewIgnoredIssues()
	set.Add(issue)
	require.True(t, set.Contains(issue))
	require.Equal(t, 1, set.Len())

	set.Remove(issue)
	require.False(t, set.Contains(issue))

	set.Add(issue)
	set.Clear()
	require.Zero(t, set.Len())
}

func TestMainIssue_RangeAndArea(t *testing.T) {
	m := NewMainIssue(IssueResinTrap,
		NewContoursIssue(IssueResinTrap, 4, []Contour{square(0, 0, 4, 4)}, 16),
		NewContoursIssue(IssueResinTrap, 2, []Contour{square(0, 0, 2, 2)}, 4),
	)
	require.Equal(t, 2, m.StartLayerIndex)
	require.Equal(t, 4, m.EndLayerIndex)
	require.True(t, m.IsIssueInBetween(3))
	require.False(t, m.IsIssueInBetween(5))
	require.Equal(t, 16.0, m.Area())
}

func TestMainIssues_SortAndQueries(t *testing.T) {
	small := NewPointsIssue(IssueIsland, 3, []image.Point{{1, 1}}, image.Rectangle{})
	big := NewPointsIssue(IssueIsland, 3, []image.Point{{5, 5}, {6, 5}}, image.Rectangle{})
	empty := Issue{Type: IssueEmptyLayer, LayerIndex: 7}
	trap := NewContoursIssue(IssueResinTrap, 1, []Contour{square(0, 0, 3, 3)}, 9)

	ms := MainIssues{
		NewMainIssue(IssueResinTrap, trap),
		NewMainIssue(IssueIsland, small),
		NewMainIssue(IssueEmptyLayer, empty),
		NewMainIssue(IssueIsland, big),
	}
	ms.Sort()

	require.Equal(t, IssueEmptyLayer, ms[0].Type)
	require.Equal(t, big, ms[1].Issues[0])
	require.Equal(t, small, ms[2].Issues[0])
	require.Equal(t, IssueResinTrap, ms[3].Type)

	require.Len(t, ms.Issues(), 4)
	require.Len(t, ms.IssuesByType(IssueIsland), 2)
	require.Len(t, ms.IssuesByTypeAt(IssueIsland, 3), 2)
	require.Empty(t, ms.IssuesByTypeAt(IssueIsland, 4))
	require.Equal(t, []Issue{empty}, ms.IssuesAt(7))
	require.Equal(t, 2, ms.CountByType()[IssueIsland])
}

func TestIssueType_Text(t *testing.T) {
	data, err := json.Marshal(IssueSuctionCup)
	require.NoError(t, err)
	require.Equal(t, `"SuctionCup"`, string(data))

	var parsed IssueType
	require.NoError(t, json.Unmarshal([]byte(`"resintrap"`), &parsed))
	require.Equal(t, IssueResinTrap, parsed)
	require.Error(t, parsed.UnmarshalText([]byte("bogus")))
}

func TestContour_AreaAndHollows(t *testing.T) {
	require.Equal(t, 16.0, square(0, 0, 4, 4).Area())
	require.Zero(t, Contour{{0, 0}, {1, 1}}.Area())

	tree := &ContourTree{
		Contours: []Contour{square(0, 0, 10, 10), square(2, 2, 8, 8), square(4, 4, 5, 5)},
		Hierarchy: []ContourLink{
			{Next: -1, Prev: -1, FirstChild: 1, Parent: -1},
			{Next: -1, Prev: -1, FirstChild: 2, Parent: 0},
			{Next: -1, Prev: -1, FirstChild: -1, Parent: 1},
		},
		Holes: []bool{false, true, false},
	}
	require.Len(t, tree.Externals(), 1)

	hollows := tree.Hollows()
	require.Len(t, hollows, 1)
	require.Len(t, hollows[0].Contours, 2)
	require.Equal(t, 35.0, hollows[0].Area)
	require.Equal(t, image.Rect(2, 2, 9, 9), hollows[0].Bounds())
}

func TestLayerWhitelist(t *testing.T) {
	require.True(t, LayerWhitelist(nil).Allows(5))
	require.True(t, LayerWhitelist{1, 5}.Allows(5))
	require.False(t, LayerWhitelist{1, 5}.Allows(2))
}
