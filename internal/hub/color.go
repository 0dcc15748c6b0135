package hub

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is an 8-bit RGB colour.
type Color struct {
	R, G, B uint8
}

// Named colours accepted by ParseColor.
var (
	Off   = Color{}
	Red   = Color{R: 255}
	Green = Color{G: 255}
	Blue  = Color{B: 255}
	Amber = Color{R: 255, G: 128}
	White = Color{R: 255, G: 255, B: 255}
)

var namedColors = map[string]Color{
	"off":   Off,
	"black": Off,
	"red":   Red,
	"green": Green,
	"blue":  Blue,
	"amber": Amber,
	"white": White,
}

// ParseColor parses a colour name or a "#rrggbb" hex triplet.
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// IsOff reports whether every component is zero.
func (c Color) IsOff() bool {
	return c == Off
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// UnmarshalText lets colours be written as strings in YAML config.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalText renders the colour as a hex triplet.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
