// Package plate formats license plates for two-line display.
package plate

import "strings"

// Display is a plate split into the two lines painted on Vietnamese
// plates: province/series on top, serial number below.
type Display struct {
	Top    string `json:"top"`
	Bottom string `json:"bottom"`
}

// Format splits a raw plate string into display lines.
//
// "29A112345" becomes {Top: "29-A1", Bottom: "123.45"}: the last five
// digits (four for 8-character plates) move to the bottom line, a dash
// separates the province code from the series letter, and the bottom
// line gets dot grouping. Plates shorter than 8 characters stay on the
// top line; an empty plate renders as placeholders.
func Format(raw string) Display {
	if raw == "" {
		return Display{Top: "--", Bottom: "--"}
	}

	// Keep letters and digits only
	var b strings.Builder
	for _, c := range strings.ToUpper(raw) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	clean := b.String()

	if len(clean) < 8 {
		return Display{Top: clean}
	}

	splitIndex := len(clean) - 4
	if len(clean) == 9 {
		splitIndex = len(clean) - 5
	}

	top := clean[:splitIndex]
	bottom := clean[splitIndex:]

	// "29A1" -> "29-A1"
	if len(top) >= 4 && isLetter(top[2]) {
		top = top[:2] + "-" + top[2:]
	}

	// "12345" -> "123.45", "2345" -> "2.345"
	switch len(bottom) {
	case 5:
		bottom = bottom[:3] + "." + bottom[3:]
	case 4:
		bottom = bottom[:1] + "." + bottom[1:]
	}

	return Display{Top: top, Bottom: bottom}
}

func isLetter(c byte) bool {
	return c >= 'A' && c <= 'Z'
}
