package flat

import (
	"fmt"

	"gopkg.in/gographics/imagick.v3/imagick"
)

// Load reads a detector flat calibration image (FITS or TIFF as shipped by
// the mission archive) using the ImageMagick bindings and converts it to a
// Field with the given plate scale (degrees per pixel).
func Load(path string, plateScale float64) (*Field, error) {
	imagick.Initialize()
	defer imagick.Terminate()

	wand := imagick.NewMagickWand()
	defer wand.Destroy()

	if err := wand.ReadImage(path); err != nil {
		return nil, fmt.Errorf("failed to read flat image %s: %w", path, err)
	}

	width := int(wand.GetImageWidth())
	height := int(wand.GetImageHeight())
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("flat image %s has zero size", path)
	}

	// Export the intensity channel as doubles to preserve the full dynamic
	// range of the calibration product.
	raw, err := wand.ExportImagePixels(0, 0, uint(width), uint(height), "I", imagick.PIXEL_DOUBLE)
	if err != nil {
		return nil, fmt.Errorf("failed to export flat pixels from %s: %w", path, err)
	}
	data, ok := raw.([]float64)
	if !ok {
		return nil, fmt.Errorf("unexpected pixel buffer type %T from %s", raw, path)
	}

	return New(width, height, data, plateScale)
}
