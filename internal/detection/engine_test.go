package detection

import (
	"context"
	"errors"
	"image"
	"image/color"
	"runtime"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"layer-inspector/internal/domain/entity"
	"layer-inspector/internal/domain/port"
	"layer-inspector/internal/infrastructure/layers"
	"layer-inspector/internal/infrastructure/raster"
)

// canvas пустой слой size x size.
func canvas(size int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, size, size))
}

func paint(img *image.Gray, r image.Rectangle, v uint8) *image.Gray {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func newStack(t *testing.T, imgs []*image.Gray, opts ...layers.Option) *layers.Stack {
	t.Helper()
	list := make([]image.Image, len(imgs))
	for i, img := range imgs {
		list[i] = img
	}
	s, err := layers.FromImages(list, opts...)
	require.NoError(t, err)
	return s
}

func detect(t *testing.T, src port.LayerSource, opts entity.DetectionOptions, ignored *entity.IgnoredIssues) entity.MainIssues {
	t.Helper()
	result, err := NewEngine(raster.NewNative()).Detect(context.Background(), src, opts, ignored, nil)
	require.NoError(t, err)
	return result
}

var (
	block = image.Rect(6, 6, 24, 24)
	hole  = image.Rect(12, 12, 18, 18)
)

func solidLayer() *image.Gray { return paint(canvas(30), block, 255) }
func ringLayer() *image.Gray { return paint(solidLayer(), hole, 0) }

// cavityStack: сплошные слои 0-1, полость на слоях 2..top, выше либо крышка, либо прорезь к краю.
func cavityStack(t *testing.T, top int, open bool) *layers.Stack {
	t.Helper()
	var imgs []*image.Gray
	for i := 0; i < 10; i++ {
		switch {
		case i < 2:
			imgs = append(imgs, solidLayer())
		case i <= top:
			imgs = append(imgs, ringLayer())
		case open:
			// полость соединена с наружным воздухом прорезью
			imgs = append(imgs, paint(ringLayer(), image.Rect(12, 12, 24, 18), 0))
		default:
			imgs = append(imgs, solidLayer())
		}
	}
	return newStack(t, imgs)
}

func resinOptions() entity.DetectionOptions {
	opts := entity.DefaultDetectionOptions()
	opts.ResinTrap.RequiredAreaToConsiderSuctionCup = 20
	return opts
}

func layerIndexes(issues []entity.Issue) []int {
	var out []int
	for _, issue := range issues {
		out = append(out, issue.LayerIndex)
	}
	slices.Sort(out)
	return out
}

func TestDetect_CavityOpenAboveBecomesSuctionCup(t *testing.T) {
	result := detect(t, cavityStack(t, 8, true), resinOptions(), nil)

	require.Empty(t, result.IssuesByType(entity.IssueResinTrap))
	cups := result.IssuesByType(entity.IssueSuctionCup)
	require.Equal(t, []int{2, 3, 4, 5, 6, 7, 8}, layerIndexes(cups))

	// после сортировки группы идут по возрастанию слоя
	require.Equal(t, 2, cups[0].LayerIndex)
	for _, cup := range cups {
		require.Equal(t, entity.PayloadContours, cup.Payload.Kind)
		require.Equal(t, image.Rect(11, 11, 19, 19), cup.Bounds)
		require.InDelta(t, 47.0, cup.Area, 1e-9)
	}
}

func TestDetect_CavityOpenAboveWithoutSuctionCups(t *testing.T) {
	opts := resinOptions()
	opts.ResinTrap.DetectSuctionCups = false
	result := detect(t, cavityStack(t, 8, true), opts, nil)

	require.Empty(t, result.IssuesByType(entity.IssueResinTrap))
	require.Empty(t, result.IssuesByType(entity.IssueSuctionCup))
}

func TestDetect_SuctionCupBelowAreaThreshold(t *testing.T) {
	opts := resinOptions()
	opts.ResinTrap.RequiredAreaToConsiderSuctionCup = 10000
	result := detect(t, cavityStack(t, 8, true), opts, nil)

	require.Empty(t, result.IssuesByType(entity.IssueSuctionCup))
	require.Empty(t, result.IssuesByType(entity.IssueResinTrap))
}

func TestDetect_EnclosedCavityIsResinTrap(t *testing.T) {
	result := detect(t, cavityStack(t, 7, false), resinOptions(), nil)

	require.Empty(t, result.IssuesByType(entity.IssueSuctionCup))
	traps := result.IssuesByType(entity.IssueResinTrap)
	require.Equal(t, []int{2, 3, 4, 5, 6, 7}, layerIndexes(traps))
	for _, trap := range traps {
		require.Equal(t, image.Rect(11, 11, 19, 19), trap.Bounds)
		require.Len(t, trap.Payload.Contours, 1)
	}
}

func TestDetect_ResinTrapStartLayer(t *testing.T) {
	opts := resinOptions()
	opts.ResinTrap.StartLayerIndex = 1
	result := detect(t, cavityStack(t, 7, false), opts, nil)
	require.Equal(t, []int{2, 3, 4, 5, 6, 7}, layerIndexes(result.IssuesByType(entity.IssueResinTrap)))

	// полость на стартовом слое всегда открыта, через неё дренируется вся полость выше
	opts.ResinTrap.StartLayerIndex = 4
	result = detect(t, cavityStack(t, 7, false), opts, nil)
	require.Empty(t, result.IssuesByType(entity.IssueResinTrap))
	require.Empty(t, result.IssuesByType(entity.IssueSuctionCup))

	opts.ResinTrap.StartLayerIndex = 10
	result = detect(t, cavityStack(t, 7, false), opts, nil)
	require.Empty(t, result.IssuesByType(entity.IssueResinTrap))
}

// pinholeStack: слой 0 с открытой полостью, слой 1 закрывает её, оставляя отверстие,
// полость на слоях 2..7, сплошная крышка выше.
func pinholeStack(t *testing.T, pinhole image.Rectangle) *layers.Stack {
	t.Helper()
	var imgs []*image.Gray
	for i := 0; i < 10; i++ {
		switch {
		case i == 0 || (i >= 2 && i <= 7):
			imgs = append(imgs, ringLayer())
		case i == 1:
			imgs = append(imgs, paint(solidLayer(), pinhole, 0))
		default:
			imgs = append(imgs, solidLayer())
		}
	}
	return newStack(t, imgs)
}

func TestDetect_WeakAirOverlapCountsAsSolid(t *testing.T) {
	// 4 пикселя связи с воздухом меньше RequiredBlackPixelsToDrain: полость на слое 2
	// считается сплошной и отрезает воздух, выше остаются ловушки
	result := detect(t, pinholeStack(t, image.Rect(14, 14, 16, 16)), resinOptions(), nil)
	require.Equal(t, []int{3, 4, 5, 6, 7}, layerIndexes(result.IssuesByType(entity.IssueResinTrap)))
	require.Empty(t, result.IssuesByType(entity.IssueSuctionCup))

	// 16 пикселей достаточно: полость дренируется целиком
	result = detect(t, pinholeStack(t, image.Rect(13, 13, 17, 17)), resinOptions(), nil)
	require.Empty(t, result.IssuesByType(entity.IssueResinTrap))
	require.Empty(t, result.IssuesByType(entity.IssueSuctionCup))
}

// cancellingProgress отменяет запуск на заданном шаге прохода.
type cancellingProgress struct {
	at     int
	done   int
	cancel context.CancelFunc
}

func (p *cancellingProgress) Reset(string, int, int) { p.done = 0 }

func (p *cancellingProgress) Increment() {
	p.done++
	if p.done == p.at {
		p.cancel()
	}
}

func TestResinTrapClassifier_CancelledMidPassReleasesCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewEngine(raster.NewNative()).newRun(cavityStack(t, 7, false), resinOptions(), nil, nil)
	r.parallelism = 1
	require.NoError(t, forEach(ctx, 1, 0, r.src.LayerCount(), r.detectLayerFeatures))

	progress := &cancellingProgress{at: 3, cancel: cancel}
	r.progress = progress
	c := newResinTrapClassifier(r, 4)
	require.NoError(t, c.classify(ctx))

	require.Error(t, ctx.Err())
	require.Equal(t, 3, progress.done, "forward pass stops right after cancellation")
	require.Zero(t, c.cache.size())
	result := r.agg.result()
	require.Empty(t, result.IssuesByType(entity.IssueResinTrap))
	require.Empty(t, result.IssuesByType(entity.IssueSuctionCup))
}

func TestDetect_ResinTrapAndSuctionCupExclusive(t *testing.T) {
	for _, open := range []bool{true, false} {
		result := detect(t, cavityStack(t, 8, open), resinOptions(), nil)
		seen := map[entity.Fingerprint]entity.IssueType{}
		for _, issue := range result.Issues() {
			if issue.Type != entity.IssueResinTrap && issue.Type != entity.IssueSuctionCup {
				continue
			}
			key := issue.Fingerprint()
			key.Type = 0
			_, dup := seen[key]
			require.False(t, dup, "contour on layer %d reported twice", issue.LayerIndex)
			seen[key] = issue.Type
		}
	}
}

// islandSquare квадрат 5x5 без пяти внутренних пикселей: 20 пикселей.
func islandSquare(img *image.Gray, at image.Point) *image.Gray {
	paint(img, image.Rectangle{Min: at, Max: at.Add(image.Pt(5, 5))}, 255)
	for _, p := range []image.Point{image.Pt(1, 1), image.Pt(3, 1), image.Pt(1, 3), image.Pt(3, 3), image.Pt(2, 2)} {
		img.SetGray(at.X+p.X, at.Y+p.Y, color.Gray{})
	}
	return img
}

func TestDetect_DisconnectedSquareIsIsland(t *testing.T) {
	column := image.Rect(8, 8, 16, 16)
	var imgs []*image.Gray
	for i := 0; i < 5; i++ {
		img := paint(canvas(40), column, 255)
		if i == 3 {
			islandSquare(img, image.Pt(25, 25))
		}
		imgs = append(imgs, img)
	}
	result := detect(t, newStack(t, imgs), entity.DefaultDetectionOptions(), nil)

	islands := result.IssuesByType(entity.IssueIsland)
	require.Len(t, islands, 1)
	island := islands[0]
	require.Equal(t, 3, island.LayerIndex)
	require.Equal(t, 20.0, island.Area)
	require.Equal(t, image.Rect(25, 25, 30, 30), island.Bounds)
	require.Equal(t, entity.PayloadPoints, island.Payload.Kind)
	require.Len(t, island.Payload.Points, 20)

	require.Empty(t, result.IssuesByType(entity.IssueOverhang))
	require.Equal(t, []entity.Issue{island}, result.IssuesAt(3))
}

func supportStack(t *testing.T, supportRows int) *layers.Stack {
	t.Helper()
	return newStack(t, []*image.Gray{
		paint(canvas(30), image.Rect(10, 10, 20, 10+supportRows), 255),
		paint(canvas(30), image.Rect(10, 10, 20, 20), 255),
	})
}

func TestDetect_SupportedComponentIsNotIsland(t *testing.T) {
	// 30 из 100 пикселей опираются на слой ниже, требуется 25
	result := detect(t, supportStack(t, 3), entity.DefaultDetectionOptions(), nil)
	require.Empty(t, result.IssuesByType(entity.IssueIsland))

	// 20 из 100: недостаточно
	result = detect(t, supportStack(t, 2), entity.DefaultDetectionOptions(), nil)
	islands := result.IssuesByType(entity.IssueIsland)
	require.Len(t, islands, 1)
	require.Equal(t, 100.0, islands[0].Area)
}

func TestDetect_EnhancedIslandBecomesOverhang(t *testing.T) {
	opts := entity.DefaultDetectionOptions()
	opts.Overhang.IndependentFromIslands = false
	opts.Overhang.ErodeIterations = 0

	result := detect(t, supportStack(t, 2), opts, nil)
	require.Empty(t, result.IssuesByType(entity.IssueIsland))
	overhangs := result.IssuesByType(entity.IssueOverhang)
	require.Len(t, overhangs, 1)
	require.Equal(t, 80.0, overhangs[0].Area)
	require.Equal(t, image.Rect(10, 10, 20, 20), overhangs[0].Bounds)
}

func TestDetect_EnhancedIslandDroppedWhenOverhangDisabled(t *testing.T) {
	// 20 опорных пикселей из 100: перепроверка запускается, эрозия не оставляет нависания
	opts := entity.DefaultDetectionOptions()
	opts.Overhang.Enabled = false

	result := detect(t, supportStack(t, 2), opts, nil)
	require.Empty(t, result.IssuesByType(entity.IssueIsland))
	require.Empty(t, result.IssuesByType(entity.IssueOverhang))

	opts.Island.EnhancedDetection = false
	result = detect(t, supportStack(t, 2), opts, nil)
	require.Len(t, result.IssuesByType(entity.IssueIsland), 1)
}

func TestDetect_IndependentOverhang(t *testing.T) {
	opts := entity.DefaultDetectionOptions()
	opts.Island.Enabled = false
	opts.Overhang.ErodeIterations = 1

	result := detect(t, supportStack(t, 2), opts, nil)
	overhangs := result.IssuesByType(entity.IssueOverhang)
	require.Len(t, overhangs, 1)
	// 10x8 новой площади, после эрозии на один пиксель остаётся 8x6
	require.Equal(t, 8.0*6, overhangs[0].Area)
	require.Equal(t, image.Rect(10, 10, 20, 20), overhangs[0].Bounds, "layer bounds")

	opts.Overhang.WhiteListLayers = entity.LayerWhitelist{5}
	result = detect(t, supportStack(t, 2), opts, nil)
	require.Empty(t, result.IssuesByType(entity.IssueOverhang))
}

func TestDetect_TouchingTopMargin(t *testing.T) {
	img := paint(canvas(40), image.Rect(15, 15, 25, 25), 255)
	img.SetGray(20, 0, color.Gray{Y: 255})
	img.SetGray(21, 0, color.Gray{Y: 100})

	opts := entity.DefaultDetectionOptions()
	opts.TouchingBound.MarginTop = 10
	result := detect(t, newStack(t, []*image.Gray{img}), opts, nil)

	touching := result.IssuesByType(entity.IssueTouchingBound)
	require.Len(t, touching, 1)
	require.Equal(t, []image.Point{image.Pt(20, 0)}, touching[0].Payload.Points)
	require.Equal(t, image.Rect(20, 0, 21, 1), touching[0].Bounds)
}

func TestDetect_PrintHeightAndEmptyLayers(t *testing.T) {
	var imgs []*image.Gray
	for i := 0; i < 10; i++ {
		if i == 4 {
			imgs = append(imgs, canvas(30))
			continue
		}
		imgs = append(imgs, solidLayer())
	}
	src := newStack(t, imgs, layers.WithLayerHeight(0.05), layers.WithMachineHeight(0.3))

	result := detect(t, src, entity.DefaultDetectionOptions(), nil)
	require.Equal(t, []int{6, 7, 8, 9}, layerIndexes(result.IssuesByType(entity.IssuePrintHeight)))
	require.Equal(t, []int{4}, layerIndexes(result.IssuesByType(entity.IssueEmptyLayer)))

	// нулевая высота принтера отключает проверку
	src = newStack(t, imgs, layers.WithLayerHeight(0.05))
	result = detect(t, src, entity.DefaultDetectionOptions(), nil)
	require.Empty(t, result.IssuesByType(entity.IssuePrintHeight))
}

// mixedStack стопка, в которой есть проблемы почти всех типов.
func mixedStack(t *testing.T) *layers.Stack {
	t.Helper()
	var imgs []*image.Gray
	for i := 0; i < 12; i++ {
		img := paint(canvas(40), image.Rect(6, 6, 26, 26), 255)
		if i >= 2 && i <= 8 {
			paint(img, image.Rect(10, 10, 16, 16), 0)
			paint(img, image.Rect(18, 18, 23, 23), 0)
		}
		if i == 0 || i == 5 {
			islandSquare(img, image.Pt(30, 30))
		}
		if i == 7 {
			img.SetGray(0, 20, color.Gray{Y: 255})
		}
		imgs = append(imgs, img)
	}
	return newStack(t, imgs, layers.WithMachineHeight(0.5))
}

// detectWithWorkers запускает детекцию с заданным числом горутин в обход ограничения по ядрам.
func detectWithWorkers(t *testing.T, src port.LayerSource, opts entity.DetectionOptions, workers int) entity.MainIssues {
	t.Helper()
	r := NewEngine(raster.NewNative()).newRun(src, opts, nil, nil)
	r.parallelism = workers
	require.NoError(t, r.detect(context.Background(), defaultCacheFactor))
	return r.agg.result()
}

func TestDetect_DeterministicAcrossParallelism(t *testing.T) {
	src := mixedStack(t)
	opts := resinOptions()

	sequential := detectWithWorkers(t, src, opts, 1)
	// больше, чем ядер: параллельный путь работает и на одноядерной машине
	workers := runtime.NumCPU() + 3
	parallel := detectWithWorkers(t, src, opts, workers)
	again := detectWithWorkers(t, src, opts, workers)

	require.NotEmpty(t, sequential)
	require.Equal(t, sequential, parallel)
	require.Equal(t, parallel, again)

	for _, issue := range sequential.IssuesAt(0) {
		require.NotContains(t, []entity.IssueType{
			entity.IssueIsland, entity.IssueOverhang, entity.IssueResinTrap, entity.IssueSuctionCup,
		}, issue.Type)
	}
	require.NotEmpty(t, sequential.IssuesByTypeAt(entity.IssueIsland, 5))
	require.NotEmpty(t, sequential.IssuesByType(entity.IssueResinTrap))
	require.NotEmpty(t, sequential.IssuesByType(entity.IssueTouchingBound))
	require.NotEmpty(t, sequential.IssuesByType(entity.IssuePrintHeight))

	for i := 1; i < len(sequential); i++ {
		require.LessOrEqual(t, sequential[i-1].Type, sequential[i].Type)
	}
}

func TestDetect_IgnoreRemovesExactlyOneIssue(t *testing.T) {
	src := mixedStack(t)
	opts := resinOptions()
	first := detect(t, src, opts, nil)

	target := first.IssuesByTypeAt(entity.IssueResinTrap, 4)
	require.NotEmpty(t, target)
	ignored := entity.NewIgnoredIssues()
	ignored.Add(target[0])

	second := detect(t, src, opts, ignored)
	expected := slices.DeleteFunc(slices.Clone(first), func(m entity.MainIssue) bool {
		return m.Issues[0].Fingerprint() == target[0].Fingerprint()
	})
	require.Len(t, second, len(first)-1)
	require.Equal(t, expected, second)

	// повторное добавление того же отпечатка ничего не меняет
	ignored.Add(target[0])
	require.Equal(t, second, detect(t, src, opts, ignored))
}

func TestDetect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewEngine(raster.NewNative()).Detect(ctx, mixedStack(t), resinOptions(), nil, nil)
	require.NoError(t, err)
	require.Empty(t, result.IssuesByType(entity.IssueIsland))
	require.Empty(t, result.IssuesByType(entity.IssueResinTrap))
}

func TestDetect_EmptySource(t *testing.T) {
	result, err := NewEngine(raster.NewNative()).Detect(context.Background(), emptySource{}, resinOptions(), nil, nil)
	require.NoError(t, err)
	require.Empty(t, result)
}

var errBrokenLayer = errors.New("broken layer")

// failingSource источник, у которого не декодируется один слой.
type failingSource struct {
	port.LayerSource
	broken int
	calls  atomic.Int64
}

func (s *failingSource) LayerImage(index int) (*image.Gray, error) {
	s.calls.Add(1)
	if index == s.broken {
		return nil, errBrokenLayer
	}
	return s.LayerSource.LayerImage(index)
}

func TestDetect_DecodeError(t *testing.T) {
	src := &failingSource{LayerSource: mixedStack(t), broken: 3}
	_, err := NewEngine(raster.NewNative()).Detect(context.Background(), src, resinOptions(), nil, nil)
	require.ErrorIs(t, err, errBrokenLayer)
}

func TestDetect_SkipsDecodeWhenNothingToCheck(t *testing.T) {
	opts := entity.DefaultDetectionOptions()
	opts.ResinTrap.Enabled = false
	opts.TouchingBound.Enabled = false
	opts.Island.WhiteListLayers = entity.LayerWhitelist{2}
	opts.Overhang.WhiteListLayers = entity.LayerWhitelist{2}

	src := &failingSource{LayerSource: mixedStack(t), broken: -1}
	detect(t, src, opts, nil)
	// слой 2 и его предшественник
	require.Equal(t, int64(2), src.calls.Load())
}

type emptySource struct{}

func (emptySource) LayerCount() int { return 0 }
func (emptySource) Layer(int) *entity.Layer { return nil }
func (emptySource) LayerImage(int) (*image.Gray, error) { return nil, errBrokenLayer }
func (emptySource) BoundingRectangle() image.Rectangle { return image.Rectangle{} }
func (emptySource) MachineHeight() float64 { return 0 }
func (emptySource) PrintHeight() float64 { return 0 }
