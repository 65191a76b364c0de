// Package imageproc shrinks uploaded photos before they reach the blob store.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// ContentType of every image produced by Downscale
const ContentType = "image/jpeg"

// Options bounds the output image
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// DefaultOptions matches the upload limits of the task photo feature
func DefaultOptions() Options {
	return Options{MaxWidth: 800, MaxHeight: 600, Quality: 70}
}

// Downscale decodes data, fits it inside MaxWidth x MaxHeight keeping the
// aspect ratio, and re-encodes it as JPEG. Smaller images are only re-encoded.
func Downscale(data []byte, opts Options) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	width, height := Fit(src.Bounds().Dx(), src.Bounds().Dy(), opts.MaxWidth, opts.MaxHeight)

	var out image.Image = src
	if width != src.Bounds().Dx() || height != src.Bounds().Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
		out = dst
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Fit returns the largest size within maxW x maxH with the aspect ratio of w x h.
// Sizes already inside the bounds are returned unchanged; a zero bound is ignored.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	if scale >= 1 {
		return w, h
	}

	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	return max(nw, 1), max(nh, 1)
}
