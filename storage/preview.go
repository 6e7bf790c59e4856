package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"math"
	"net/url"
	"strconv"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

// Gravity values choose which part of the image is kept when cropping.
const (
	GravityCenter = "center"
	GravityTop    = "top"
	GravityBottom = "bottom"
	GravityLeft   = "left"
	GravityRight  = "right"
)

// MaxPreviewSize bounds the width and height of a preview.
const MaxPreviewSize = 4000

// ErrInvalidPreview is returned for out of range preview options.
var ErrInvalidPreview = errors.New("invalid preview options")

// PreviewOptions define how a preview is rendered.
type PreviewOptions struct {
	Width   int
	Height  int
	Gravity string
	Quality int
}

// DefaultPreviewOptions are the options used for post images.
var DefaultPreviewOptions = PreviewOptions{
	Width:   2000,
	Height:  2000,
	Gravity: GravityTop,
	Quality: 100,
}

// Validate checks the option ranges.
func (o PreviewOptions) Validate() error {
	if o.Width <= 0 || o.Width > MaxPreviewSize || o.Height <= 0 || o.Height > MaxPreviewSize {
		return fmt.Errorf("%w: size must be between 1 and %d", ErrInvalidPreview, MaxPreviewSize)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("%w: quality must be between 1 and 100", ErrInvalidPreview)
	}
	switch o.Gravity {
	case GravityCenter, GravityTop, GravityBottom, GravityLeft, GravityRight:
	default:
		return fmt.Errorf("%w: unknown gravity %q", ErrInvalidPreview, o.Gravity)
	}
	return nil
}

// Query encodes the options as URL query values.
func (o PreviewOptions) Query() url.Values {
	return url.Values{
		"width":   {strconv.Itoa(o.Width)},
		"height":  {strconv.Itoa(o.Height)},
		"gravity": {o.Gravity},
		"quality": {strconv.Itoa(o.Quality)},
	}
}

// ParsePreviewOptions reads the options from URL query values. Missing values take the defaults.
func ParsePreviewOptions(q url.Values) (PreviewOptions, error) {
	opts := DefaultPreviewOptions
	for key, dst := range map[string]*int{"width": &opts.Width, "height": &opts.Height, "quality": &opts.Quality} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("%w: %s is not a number", ErrInvalidPreview, key)
		}
		*dst = n
	}
	if g := q.Get("gravity"); g != "" {
		opts.Gravity = g
	}
	return opts, opts.Validate()
}

// Preview decodes an image (jpeg, png, gif or webp), scales it to cover the requested size
// and crops it around the gravity. Images are never upscaled. The result is a JPEG.
func Preview(data []byte, opts PreviewOptions) ([]byte, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}
	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("could not decode image: empty bounds")
	}

	scale := math.Min(1, math.Max(float64(opts.Width)/w, float64(opts.Height)/h))
	scaledW, scaledH := int(math.Round(w*scale)), int(math.Round(h*scale))
	cropW, cropH := min(opts.Width, scaledW), min(opts.Height, scaledH)

	offX, offY := (scaledW-cropW)/2, (scaledH-cropH)/2
	switch opts.Gravity {
	case GravityTop:
		offY = 0
	case GravityBottom:
		offY = scaledH - cropH
	case GravityLeft:
		offX = 0
	case GravityRight:
		offX = scaledW - cropW
	}

	// crop window mapped back to source pixels
	srcRect := image.Rect(
		b.Min.X+int(float64(offX)/scale),
		b.Min.Y+int(float64(offY)/scale),
		b.Min.X+int(math.Round(float64(offX+cropW)/scale)),
		b.Min.Y+int(math.Round(float64(offY+cropH)/scale)),
	).Intersect(b)

	dst := image.NewRGBA(image.Rect(0, 0, cropW, cropH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, srcRect, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("could not encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
