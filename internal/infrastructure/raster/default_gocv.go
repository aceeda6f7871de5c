//go:build gocv
// +build gocv

package raster

import "layer-inspector/internal/domain/port"

// Default возвращает операции на OpenCV при сборке с тегом gocv.
func Default() port.RasterOps {
	return NewGoCV()
}
