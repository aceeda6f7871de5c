package layers

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"

	"layer-inspector/internal/domain/port"
)

var supportedExtensions = []string{".png", ".bmp", ".tif", ".tiff", ".jpg", ".jpeg"}

// Limits ограничения на входные данные. Размеры читаются из заголовков до декодирования.
type Limits struct {
	// MaxLayerPixels наибольшее число пикселей в одном слое
	MaxLayerPixels int64
	// MaxArchiveBytes наибольший суммарный распакованный размер слоёв в архиве
	MaxArchiveBytes uint64
}

// DefaultLimits покрывают 16K-матрицы с запасом.
var DefaultLimits = Limits{
	MaxLayerPixels:  1 << 27,
	MaxArchiveBytes: 2 << 30,
}

// Loader загружает стопку слоёв из каталога или zip-архива.
// Слои упорядочиваются по числу в имени файла.
type Loader struct {
	opts   []Option
	limits Limits
	logger *slog.Logger
}

// NewLoader создаёт загрузчик; opts применяются к каждой стопке.
func NewLoader(logger *slog.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{opts: opts, limits: DefaultLimits, logger: logger}
}

// WithLimits возвращает копию загрузчика с другими ограничениями.
func (l *Loader) WithLimits(limits Limits) *Loader {
	c := *l
	c.limits = limits
	return &c
}

// layerFile именованный источник байтов одного слоя.
type layerFile struct {
	name string
	open func() (io.ReadCloser, error)
}

// FromDirectory читает изображения слоёв из каталога (без рекурсии).
func (l *Loader) FromDirectory(ctx context.Context, dir string) (port.LayerSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read layer directory: %w", err)
	}
	var files []layerFile
	for _, e := range entries {
		if e.IsDir() || !isLayerFile(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		files = append(files, layerFile{
			name: e.Name(),
			open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}
	s, err := l.load(ctx, dir, files)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FromArchive читает изображения слоёв из zip-архива.
func (l *Loader) FromArchive(ctx context.Context, data []byte) (port.LayerSource, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open layer archive: %w", err)
	}
	var (
		files []layerFile
		total uint64
	)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") || !isLayerFile(f.Name) {
			continue
		}
		// archive/zip не отдаёт больше заявленного UncompressedSize64
		total += f.UncompressedSize64
		if total > l.limits.MaxArchiveBytes {
			return nil, fmt.Errorf("archive unpacks to more than %d bytes: %w", l.limits.MaxArchiveBytes, ErrImageTooLarge)
		}
		files = append(files, layerFile{name: f.Name, open: f.Open})
	}
	s, err := l.load(ctx, "archive", files)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (l *Loader) load(ctx context.Context, origin string, files []layerFile) (*Stack, error) {
	if len(files) == 0 {
		return nil, ErrNoLayers
	}
	slices.SortFunc(files, func(a, b layerFile) int {
		return compareNatural(a.name, b.name)
	})

	// размер первого слоя задаёт размер всей стопки
	first, err := l.checkConfig(files[0], image.Point{})
	if err != nil {
		return nil, err
	}

	s := newStack(len(files), l.opts...)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, f := range files {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			if i > 0 {
				if _, err := l.checkConfig(f, first); err != nil {
					return err
				}
			}
			img, err := decodeFile(f)
			if err != nil {
				return err
			}
			return s.set(i, img)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := s.finish(); err != nil {
		return nil, err
	}

	l.logger.Info("layer stack loaded", "origin", origin, "layers", s.LayerCount(),
		"size", s.Size().Size(), "bounds", s.BoundingRectangle())
	return s, nil
}

// checkConfig читает только заголовок изображения и проверяет размер.
// Нулевой want означает любой размер в пределах лимита.
func (l *Loader) checkConfig(f layerFile, want image.Point) (image.Point, error) {
	rc, err := f.open()
	if err != nil {
		return image.Point{}, fmt.Errorf("open %s: %w", f.name, err)
	}
	defer rc.Close()

	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return image.Point{}, fmt.Errorf("decode %s header: %v: %w", f.name, err, ErrUnsupportedImage)
	}
	size := image.Pt(cfg.Width, cfg.Height)
	switch {
	case size.X <= 0 || size.Y <= 0:
		return image.Point{}, fmt.Errorf("%s has size %v: %w", f.name, size, ErrUnsupportedImage)
	case int64(size.X)*int64(size.Y) > l.limits.MaxLayerPixels:
		return image.Point{}, fmt.Errorf("%s is %v, limit is %d pixels: %w", f.name, size, l.limits.MaxLayerPixels, ErrImageTooLarge)
	case want != (image.Point{}) && size != want:
		return image.Point{}, fmt.Errorf("%s is %v, expected %v: %w", f.name, size, want, ErrUnsupportedImage)
	}
	return size, nil
}

func decodeFile(f layerFile) (image.Image, error) {
	rc, err := f.open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.name, err)
	}
	defer rc.Close()

	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", f.name, err, ErrUnsupportedImage)
	}
	return img, nil
}

func isLayerFile(name string) bool {
	base := path.Base(filepath.ToSlash(name))
	if strings.HasPrefix(base, ".") {
		return false
	}
	return slices.Contains(supportedExtensions, strings.ToLower(path.Ext(base)))
}

// compareNatural сравнивает имена по последнему числу в базовом имени, затем лексикографически.
func compareNatural(a, b string) int {
	na, oka := trailingNumber(a)
	nb, okb := trailingNumber(b)
	switch {
	case oka && okb && na != nb:
		if na < nb {
			return -1
		}
		return 1
	case oka != okb:
		if oka {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func trailingNumber(name string) (int, bool) {
	base := path.Base(filepath.ToSlash(name))
	base = strings.TrimSuffix(base, path.Ext(base))
	end := len(base)
	for end > 0 && (base[end-1] < '0' || base[end-1] > '9') {
		end--
	}
	start := end
	for start > 0 && base[start-1] >= '0' && base[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.Atoi(base[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Проверка реализации интерфейса
var _ port.StackLoader = (*Loader)(nil)
