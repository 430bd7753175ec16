package utils

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"

	"go.viam.com/test"
)

func TestForEachIndex(t *testing.T) {
	var visited [50]atomic.Bool
	err := ForEachIndex(context.Background(), len(visited), func(ctx context.Context, idx int) error {
		visited[idx].Store(true)
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
	for i := range visited {
		test.That(t, visited[i].Load(), test.ShouldBeTrue)
	}

	errBad := errors.New("bad")
	err = ForEachIndex(context.Background(), 10, func(ctx context.Context, idx int) error {
		if idx == 3 {
			return errBad
		}
		return nil
	})
	test.That(t, errors.Is(err, errBad), test.ShouldBeTrue)

	err = ForEachIndex(context.Background(), 1, func(ctx context.Context, idx int) error {
		panic(1)
	})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "panic")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = ForEachIndex(ctx, 5, func(ctx context.Context, idx int) error {
		return nil
	})
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestParallelForEachPixel(t *testing.T) {
	size := image.Pt(13, 7)
	var count atomic.Int64
	seen := make([][]atomic.Bool, size.Y)
	for y := range seen {
		seen[y] = make([]atomic.Bool, size.X)
	}
	ParallelForEachPixel(size, func(x, y int) {
		count.Add(1)
		seen[y][x].Store(true)
	})
	test.That(t, count.Load(), test.ShouldEqual, int64(size.X*size.Y))
	for y := range seen {
		for x := range seen[y] {
			test.That(t, seen[y][x].Load(), test.ShouldBeTrue)
		}
	}

	ParallelForEachPixel(image.Point{}, func(x, y int) {
		t.Fatal("no pixels to visit")
	})
}
