package messaging

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is a 24-bit RGB color, as used by chat embeds.
type Color uint32

var (
	ColorInfo    = mustHex("#3498db")
	ColorSuccess = mustHex("#2ecc71")
	ColorWarning = mustHex("#f1c40f")
	ColorDanger  = mustHex("#e74c3c")
	ColorNeutral = mustHex("#95a5a6")
)

func mustHex(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

func ParseColor(s string) (Color, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return 0, fmt.Errorf("parse color: %w", err)
	}
	return fromColorful(c), nil
}

func fromColorful(c colorful.Color) Color {
	r, g, b := c.Clamped().RGB255()
	return Color(uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

func (c Color) colorful() colorful.Color {
	return colorful.Color{
		R: float64((c>>16)&0xff) / 255.0,
		G: float64((c>>8)&0xff) / 255.0,
		B: float64(c&0xff) / 255.0,
	}
}

func (c Color) Hex() string {
	return fmt.Sprintf("#%06x", uint32(c)&0xffffff)
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

func (c *Color) UnmarshalText(b []byte) error {
	v, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Blend mixes two colors in Lab space. t = 0 gives a, t = 1 gives b.
func Blend(a, b Color, t float64) Color {
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return fromColorful(a.colorful().BlendLab(b.colorful(), t))
}

// Countdown shades from success to danger as the remaining share of a wait goes to zero.
func Countdown(left, total float64) Color {
	if total <= 0 {
		return ColorDanger
	}
	return Blend(ColorDanger, ColorSuccess, left/total)
}
