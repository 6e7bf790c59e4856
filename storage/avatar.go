package storage

import (
	"bytes"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"strings"
	"unicode"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// DefaultAvatarSize is the side in pixels of the generated avatars.
	DefaultAvatarSize = 128
	// avatarCanvas is the side of the canvas the glyphs are drawn on before scaling.
	avatarCanvas = 32
)

var avatarPalette = []color.RGBA{
	{R: 0x87, G: 0x7e, B: 0xff, A: 0xff},
	{R: 0x2f, G: 0x9e, B: 0x8f, A: 0xff},
	{R: 0xe0, G: 0x6c, B: 0x4f, A: 0xff},
	{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff},
	{R: 0xd9, G: 0x46, B: 0xa0, A: 0xff},
	{R: 0x55, G: 0x8b, B: 0x2f, A: 0xff},
}

// Initials returns up to two uppercase initials of a name.
func Initials(name string) string {
	var initials []rune
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				initials = append(initials, unicode.ToUpper(r))
				break
			}
		}
		if len(initials) == 2 {
			break
		}
	}
	return string(initials)
}

// InitialsAvatar renders a square PNG with the initials of name on a background color derived
// from the name, so the same name always gets the same avatar.
func InitialsAvatar(name string, size int) ([]byte, error) {
	if size <= 0 || size > MaxPreviewSize {
		size = DefaultAvatarSize
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	bg := avatarPalette[h.Sum32()%uint32(len(avatarPalette))]

	canvas := image.NewRGBA(image.Rect(0, 0, avatarCanvas, avatarCanvas))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	text := Initials(name)
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
	}
	width := d.MeasureString(text).Ceil()
	metrics := basicfont.Face7x13.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil()
	d.Dot = fixed.P((avatarCanvas-width)/2, (avatarCanvas-height)/2+metrics.Ascent.Ceil())
	d.DrawString(text)

	avatar := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(avatar, avatar.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, avatar); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
