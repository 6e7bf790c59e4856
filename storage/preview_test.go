package storage

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"testing"

	qt "github.com/frankban/quicktest"
)

// createTestPNG returns a PNG whose top half is red and bottom half is blue.
func createTestPNG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if y < height/2 {
				img.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{B: 255, A: 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (image.Image, int, int) {
	img, format, err := image.Decode(bytes.NewReader(data))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, format, qt.Equals, "jpeg")
	return img, img.Bounds().Dx(), img.Bounds().Dy()
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name           string
		width, height  int
		opts           PreviewOptions
		expectedWidth  int
		expectedHeight int
	}{
		{
			name:           "Small image is not upscaled",
			width:          300,
			height:         200,
			opts:           DefaultPreviewOptions,
			expectedWidth:  300,
			expectedHeight: 200,
		},
		{
			name:           "Square crop of a wide image",
			width:          400,
			height:         200,
			opts:           PreviewOptions{Width: 100, Height: 100, Gravity: GravityCenter, Quality: 90},
			expectedWidth:  100,
			expectedHeight: 100,
		},
		{
			name:           "Wide crop of a tall image",
			width:          200,
			height:         800,
			opts:           PreviewOptions{Width: 100, Height: 50, Gravity: GravityTop, Quality: 90},
			expectedWidth:  100,
			expectedHeight: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Preview(createTestPNG(tt.width, tt.height), tt.opts)
			qt.Assert(t, err, qt.IsNil)
			_, w, h := decodeSize(t, out)
			qt.Assert(t, w, qt.Equals, tt.expectedWidth)
			qt.Assert(t, h, qt.Equals, tt.expectedHeight)
		})
	}
}

func TestPreviewGravity(t *testing.T) {
	c := qt.New(t)
	data := createTestPNG(100, 400)

	top, err := Preview(data, PreviewOptions{Width: 100, Height: 100, Gravity: GravityTop, Quality: 100})
	c.Assert(err, qt.IsNil)
	img, _, _ := decodeSize(t, top)
	r, _, b, _ := img.At(50, 50).RGBA()
	c.Assert(r > b, qt.IsTrue, qt.Commentf("top gravity must keep the red half"))

	bottom, err := Preview(data, PreviewOptions{Width: 100, Height: 100, Gravity: GravityBottom, Quality: 100})
	c.Assert(err, qt.IsNil)
	img, _, _ = decodeSize(t, bottom)
	r, _, b, _ = img.At(50, 50).RGBA()
	c.Assert(b > r, qt.IsTrue, qt.Commentf("bottom gravity must keep the blue half"))
}

func TestPreviewErrors(t *testing.T) {
	c := qt.New(t)
	_, err := Preview([]byte{0x00, 0x01, 0x02}, DefaultPreviewOptions)
	c.Assert(err, qt.IsNotNil)

	_, err = Preview(createTestPNG(10, 10), PreviewOptions{Width: 0, Height: 10, Gravity: GravityTop, Quality: 10})
	c.Assert(err, qt.ErrorIs, ErrInvalidPreview)

	_, err = Preview(createTestPNG(10, 10), PreviewOptions{Width: 10, Height: 10, Gravity: "middle", Quality: 10})
	c.Assert(err, qt.ErrorIs, ErrInvalidPreview)
}

func TestParsePreviewOptions(t *testing.T) {
	c := qt.New(t)

	opts, err := ParsePreviewOptions(url.Values{})
	c.Assert(err, qt.IsNil)
	c.Assert(opts, qt.Equals, DefaultPreviewOptions)

	opts, err = ParsePreviewOptions(url.Values{"width": {"300"}, "gravity": {"center"}})
	c.Assert(err, qt.IsNil)
	c.Assert(opts.Width, qt.Equals, 300)
	c.Assert(opts.Height, qt.Equals, 2000)
	c.Assert(opts.Gravity, qt.Equals, GravityCenter)

	roundTrip, err := ParsePreviewOptions(opts.Query())
	c.Assert(err, qt.IsNil)
	c.Assert(roundTrip, qt.Equals, opts)

	_, err = ParsePreviewOptions(url.Values{"quality": {"high"}})
	c.Assert(err, qt.ErrorIs, ErrInvalidPreview)
	_, err = ParsePreviewOptions(url.Values{"quality": {"101"}})
	c.Assert(err, qt.ErrorIs, ErrInvalidPreview)
}
