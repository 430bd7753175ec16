// Package utils contains small concurrency helpers shared by the offline calibration tools.
package utils

import (
	"context"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
	quarterProcs := float64(ParallelFactor) * .25
	if quarterProcs > 8 {
		ParallelFactor = int(quarterProcs)
	}
}

// ParallelForEachPixel loops through the image and calls f for each [x, y] position.
// The image is split into ParallelFactor horizontal bands and each band gets its own goroutine.
func ParallelForEachPixel(size image.Point, f func(x, y int)) {
	bands := ParallelFactor
	if bands > size.Y {
		bands = size.Y
	}
	if bands <= 0 {
		return
	}
	bandHeight := int(math.Floor(float64(size.Y) / float64(bands)))

	var waitGroup sync.WaitGroup
	waitGroup.Add(bands)
	for i := 0; i < bands; i++ {
		startY := i * bandHeight
		endY := (i + 1) * bandHeight
		if i == bands-1 {
			endY = size.Y
		}
		utils.PanicCapturingGo(func() {
			defer waitGroup.Done()
			for y := startY; y < endY; y++ {
				for x := 0; x < size.X; x++ {
					f(x, y)
				}
			}
		})
	}
	waitGroup.Wait()
}

// IndexFunc is the unit of work for ForEachIndex.
type IndexFunc func(ctx context.Context, idx int) error

// ForEachIndex calls f for every index in [0, n) using at most ParallelFactor goroutines. The first
// failure cancels the context handed to the remaining calls; every non-cancellation error is
// returned, combined. A panic in f is converted to an error.
func ForEachIndex(ctx context.Context, n int, f IndexFunc) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(ParallelFactor)

	var errMu sync.Mutex
	var bigError error
	storeError := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		if bigError == nil || !errors.Is(err, context.Canceled) {
			bigError = multierr.Combine(bigError, err)
		}
	}

	for i := 0; i < n; i++ {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() (err error) {
			defer func() {
				if thePanic := recover(); thePanic != nil {
					err = fmt.Errorf("got panic running index %d in parallel: %v", i, thePanic)
					storeError(err)
				}
			}()
			if err := f(groupCtx, i); err != nil {
				storeError(err)
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return bigError
	}
	return ctx.Err()
}
