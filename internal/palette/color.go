package palette

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/hpungsan/stream/internal/tagger"
)

// Color is an HSL colour with fixed 35% saturation.
type Color struct {
	Hue       int `json:"hue"`
	Lightness int `json:"lightness"`
}

// Key is the identity used for conflict checks.
func (c Color) Key() string {
	return fmt.Sprintf("%d-%d", c.Hue, c.Lightness)
}

// Hex renders the colour as #rrggbb.
func (c Color) Hex() string {
	return colorful.Hsl(float64(c.Hue), 0.35, float64(c.Lightness)/100).Hex()
}

// Built-in tags keep these colours unless overridden. They all use
// lightness 24 so they never collide with auto-assigned colours.
var builtinColors = map[string]Color{
	tagger.LabelRole:       {Hue: 217, Lightness: 24},
	tagger.LabelContext:    {Hue: 38, Lightness: 24},
	tagger.LabelLogic:      {Hue: 271, Lightness: 24},
	tagger.LabelCode:       {Hue: 189, Lightness: 24},
	tagger.LabelRules:      {Hue: 350, Lightness: 24},
	tagger.LabelOutput:     {Hue: 160, Lightness: 24},
	tagger.LabelAll:        {Hue: 25, Lightness: 24},
	tagger.LabelTemp:       {Hue: 24, Lightness: 24},
	tagger.LabelPython:     {Hue: 48, Lightness: 24},
	tagger.LabelReact:      {Hue: 199, Lightness: 24},
	tagger.LabelTypeScript: {Hue: 221, Lightness: 24},
	tagger.LabelJavaScript: {Hue: 52, Lightness: 24},
	tagger.LabelNextJS:     {Hue: 0, Lightness: 24},
	tagger.LabelCSharp:     {Hue: 258, Lightness: 24},
	tagger.LabelUnity:      {Hue: 240, Lightness: 24},
	tagger.LabelCPP:        {Hue: 239, Lightness: 24},
	tagger.LabelUnreal:     {Hue: 215, Lightness: 24},
	tagger.LabelSQL:        {Hue: 21, Lightness: 24},
}

// BuiltinColor returns the fixed colour of a built-in label.
func BuiltinColor(label string) (Color, bool) {
	c, ok := builtinColors[label]
	return c, ok
}
