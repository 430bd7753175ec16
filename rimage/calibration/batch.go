package calibration

import (
	"context"
	"image"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/camcal/logging"
	"go.viam.com/camcal/rimage"
	"go.viam.com/camcal/rimage/detection/chessboard"
	"go.viam.com/camcal/utils"
)

// Batch is the outcome of running the detector over a set of images.
type Batch struct {
	Observations []Observation
	ImageSize    image.Point
	// Skipped lists the images where no board was found, in input order.
	Skipped []string
	// Strategies counts which detection strategy succeeded how often.
	Strategies map[string]int
	Total      int
}

type detectResult struct {
	obs      *Observation
	size     image.Point
	strategy string
	notFound bool
}

// DetectAll runs detector over every image in paths in parallel. Images without a board are
// skipped and recorded; any other failure, such as an unreadable file, aborts the batch. The batch
// fails with ErrNoDetections when every image was skipped, and with ErrInconsistentObservation
// when the images do not all share one resolution.
func DetectAll(
	ctx context.Context,
	paths []string,
	pattern image.Point,
	squareSize float64,
	detector *chessboard.Detector,
	logger logging.Logger,
) (*Batch, error) {
	if squareSize <= 0 {
		return nil, errors.Errorf("square size must be positive, got %v", squareSize)
	}
	objectPoints := ObjectPoints(pattern, squareSize)
	results := make([]detectResult, len(paths))

	err := utils.ForEachIndex(ctx, len(paths), func(ctx context.Context, idx int) error {
		path := paths[idx]
		img, err := rimage.ReadImageFromFile(path)
		if err != nil {
			return err
		}
		det, err := detector.Detect(ctx, img, pattern)
		if errors.Is(err, chessboard.ErrNotFound) {
			logger.Debugw("no chessboard found", "image", filepath.Base(path))
			results[idx] = detectResult{notFound: true}
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "detecting chessboard in %q", path)
		}
		results[idx] = detectResult{
			obs: &Observation{
				ObjectPoints: append([]r3.Vector(nil), objectPoints...),
				ImagePoints:  det.Corners,
				Source:       path,
			},
			size:     det.ImageSize,
			strategy: det.Strategy,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch := &Batch{Total: len(paths), Strategies: map[string]int{}}
	for i, res := range results {
		if res.notFound {
			batch.Skipped = append(batch.Skipped, paths[i])
			continue
		}
		if len(batch.Observations) == 0 {
			batch.ImageSize = res.size
		} else if res.size != batch.ImageSize {
			return nil, errors.Wrapf(ErrInconsistentObservation, "%q is %v, earlier images are %v",
				paths[i], res.size, batch.ImageSize)
		}
		batch.Observations = append(batch.Observations, *res.obs)
		batch.Strategies[res.strategy]++
	}

	logger.Infof("found chessboard in %d of %d images", len(batch.Observations), batch.Total)
	if len(batch.Skipped) > 0 {
		logger.Infow("skipped images", "images", lo.Map(batch.Skipped, func(p string, _ int) string {
			return filepath.Base(p)
		}))
	}
	if len(batch.Observations) == 0 {
		return nil, ErrNoDetections
	}
	return batch, nil
}
