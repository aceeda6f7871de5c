package detection

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// resolveParallelism: <=0 означает число ядер, больше числа ядер не бывает.
func resolveParallelism(n int) int {
	cpus := runtime.NumCPU()
	if n <= 0 || n > cpus {
		return cpus
	}
	return n
}

// forEach выполняет fn для индексов [from, to) не более чем в limit горутинах.
// После отмены ctx новые индексы не запускаются; первая ошибка fn останавливает остальные.
func forEach(ctx context.Context, limit, from, to int, fn func(ctx context.Context, i int) error) error {
	if from >= to {
		return nil
	}
	if limit == 1 || to-from == 1 {
		for i := from; i < to; i++ {
			if ctx.Err() != nil {
				return nil
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i := from; i < to; i++ {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}
			return fn(gCtx, i)
		})
	}
	return g.Wait()
}
