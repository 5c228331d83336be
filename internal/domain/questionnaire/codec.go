package questionnaire

import "strings"

const (
	listSep    = '|'
	listEscape = '\\'
)

// EncodeList joins entries with '|'. A '|' or '\' inside an entry is
// escaped with '\', so plain entries keep the "A|B|C" shape.
func EncodeList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte(listSep)
		}
		for _, r := range item {
			if r == listSep || r == listEscape {
				b.WriteByte(listEscape)
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DecodeList reverses EncodeList. The empty string is the empty list, and a
// dangling escape at the end is kept literally.
func DecodeList(s string) []string {
	items := []string{}
	if s == "" {
		return items
	}

	var cur strings.Builder
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == listEscape:
			escaped = true
		case r == listSep:
			items = append(items, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if escaped {
		cur.WriteRune(listEscape)
	}
	return append(items, cur.String())
}
