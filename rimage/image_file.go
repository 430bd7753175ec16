package rimage

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".gif":  true,
}

// ReadImageFromFile decodes the image stored at path. EXIF orientation is applied so the result
// matches what the camera saw.
func ReadImageFromFile(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read image %q", path)
	}
	return img, nil
}

// WriteImageToFile encodes img to path, picking the format from the file extension.
func WriteImageToFile(path string, img image.Image) error {
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "cannot write image %q", path)
	}
	return nil
}

// ImagePathsInDir lists the image files directly inside dir, sorted by name.
func ImagePathsInDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list %q", dir)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
