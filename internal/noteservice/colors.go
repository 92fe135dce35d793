package noteservice

import "math/rand/v2"

// palette holds the pastel background colors assigned to new notes.
var palette = []string{
	"#fde2e4",
	"#fad2e1",
	"#e2ece9",
	"#bee1e6",
	"#cddafd",
	"#fff1e6",
	"#dfe7fd",
	"#f0efeb",
	"#eae4e9",
	"#fde4cf",
}

// RandomColor picks a note color from the palette.
func RandomColor() string {
	return palette[rand.IntN(len(palette))]
}
