package leak

import "github.com/enescakir/emoji"

const placeholderGlyph = "?"

// countryDisplay joins a country name with its flag glyph, falling back to a
// placeholder when the ISO code is empty or unmapped. Applied to every
// record, conclusion rows included, so rendering never special-cases.
func countryDisplay(name, code string) string {
	glyph := placeholderGlyph
	if flag, err := emoji.CountryFlag(code); err == nil {
		glyph = flag.String()
	}
	return name + " " + glyph
}
