//go:build !gocv
// +build !gocv

package raster

import "layer-inspector/internal/domain/port"

// Default возвращает нативные операции, если сборка без тега gocv.
func Default() port.RasterOps {
	return NewNative()
}
