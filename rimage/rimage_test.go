package rimage

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestMakeGray(t *testing.T) {
	img := image.NewNRGBA(image.Rect(10, 20, 14, 22))
	img.Set(10, 20, color.NRGBA{255, 255, 255, 255})
	img.Set(13, 21, color.NRGBA{0, 0, 0, 255})

	gray := MakeGray(img)
	test.That(t, gray.Bounds(), test.ShouldResemble, image.Rect(0, 0, 4, 2))
	test.That(t, gray.GrayAt(0, 0).Y, test.ShouldEqual, uint8(255))
	test.That(t, gray.GrayAt(3, 1).Y, test.ShouldEqual, uint8(0))
	test.That(t, gray.Bounds().Size(), test.ShouldResemble, img.Bounds().Size())

	// An origin based gray image is passed through untouched.
	test.That(t, MakeGray(gray), test.ShouldEqual, gray)
}

func TestBilinearInterpolation(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{
		0, 10,
		20, 30,
	})
	v, ok := BilinearInterpolation(m, r2.Point{X: 0.5, Y: 0.5})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldAlmostEqual, 15)

	v, ok = BilinearInterpolation(m, r2.Point{X: 1, Y: 0})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldAlmostEqual, 10)

	_, ok = BilinearInterpolation(m, r2.Point{X: 1.5, Y: 0})
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = BilinearInterpolation(m, r2.Point{X: -0.1, Y: 0})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestConvolveSobel(t *testing.T) {
	// Horizontal ramp: every pixel is 3*x.
	m := mat.NewDense(5, 6, nil)
	for y := 0; y < 5; y++ {
		for x := 0; x < 6; x++ {
			m.Set(y, x, float64(3*x))
		}
	}
	sobelX := GetSobelX()
	gx, err := ConvolveGrayFloat64(m, &sobelX)
	test.That(t, err, test.ShouldBeNil)
	// Interior gradient of a unit step ramp under Sobel is 8 per unit.
	test.That(t, gx.At(2, 2), test.ShouldAlmostEqual, 24)

	sobelY := GetSobelY()
	gy, err := ConvolveGrayFloat64(m, &sobelY)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Max(gy), test.ShouldAlmostEqual, 0)
	test.That(t, mat.Min(gy), test.ShouldAlmostEqual, 0)

	blur := GetBlur3()
	blurred, err := ConvolveGrayFloat64(m, &blur)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, blurred.At(2, 2), test.ShouldAlmostEqual, m.At(2, 2))

	bad := Kernel{[][]float64{{1, 1}}, 2, 1}
	_, err = ConvolveGrayFloat64(m, &bad)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEqualizeHist(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 1))
	img.Pix = []uint8{100, 101, 102, 103}

	eq := EqualizeHist(img)
	test.That(t, eq.Pix[0], test.ShouldEqual, uint8(0))
	test.That(t, eq.Pix[3], test.ShouldEqual, uint8(255))
	test.That(t, eq.Pix[1], test.ShouldBeLessThan, eq.Pix[2])

	flat := image.NewGray(image.Rect(0, 0, 3, 3))
	for i := range flat.Pix {
		flat.Pix[i] = 42
	}
	test.That(t, EqualizeHist(flat).Pix, test.ShouldResemble, flat.Pix)

	enhanced := EnhanceForDetection(img)
	test.That(t, enhanced.Bounds(), test.ShouldResemble, img.Bounds())
}

func checker(size, cell int, dark, light uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := light
			if (x/cell+y/cell)%2 == 0 {
				v = dark
			}
			img.SetGray(x, y, color.Gray{v})
		}
	}
	return img
}

func TestNormalizeLocalContrast(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range flat.Pix {
		flat.Pix[i] = 42
	}
	for _, v := range NormalizeLocalContrast(flat, 3).Pix {
		test.That(t, v, test.ShouldEqual, uint8(128))
	}

	// the same pattern at a sixth of the contrast normalizes to nearly the same image
	strong := NormalizeLocalContrast(checker(64, 8, 10, 250), 4)
	weak := NormalizeLocalContrast(checker(64, 8, 110, 150), 4)
	test.That(t, weak.Bounds(), test.ShouldResemble, strong.Bounds())
	for _, pt := range []image.Point{{20, 20}, {28, 35}, {40, 44}, {33, 30}} {
		s, w := float64(strong.GrayAt(pt.X, pt.Y).Y), float64(weak.GrayAt(pt.X, pt.Y).Y)
		test.That(t, w, test.ShouldAlmostEqual, s, 8)
	}
	// dark cells stay dark and light cells stay light
	test.That(t, weak.GrayAt(20, 20).Y, test.ShouldBeLessThan, uint8(128))
	test.That(t, weak.GrayAt(28, 20).Y, test.ShouldBeGreaterThan, uint8(128))
}

func TestImageFiles(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 8, 6))
	img.SetGray(2, 3, color.Gray{200})

	test.That(t, WriteImageToFile(filepath.Join(dir, "b.png"), img), test.ShouldBeNil)
	test.That(t, WriteImageToFile(filepath.Join(dir, "a.png"), img), test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600), test.ShouldBeNil)

	paths, err := ImagePathsInDir(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, paths, test.ShouldResemble, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")})

	read, err := ReadImageFromFile(paths[0])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, MakeGray(read).GrayAt(2, 3).Y, test.ShouldEqual, uint8(200))

	_, err = ReadImageFromFile(filepath.Join(dir, "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ImagePathsInDir(filepath.Join(dir, "nope"))
	test.That(t, err, test.ShouldNotBeNil)
}
