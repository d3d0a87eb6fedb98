package genre

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Separator joins the components of a multi-genre string.
const Separator = " / "

// acronyms are rendered upper-case regardless of input casing
var acronyms = map[string]bool{
	"EDM": true,
	"DNB": true,
	"R&B": true,
	"UK":  true,
	"VIP": true,
}

// splitComponents splits a genre string on "/" and trims every part.
func splitComponents(s string) []string {
	parts := strings.Split(s, "/")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// Components returns the non-empty components of a multi-genre string.
func Components(s string) []string {
	var out []string
	for _, p := range splitComponents(s) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SortGenre orders the components of a multi-genre string alphabetically
// (case-insensitive). Strings without "/" are returned untouched.
func SortGenre(s string) string {
	if !strings.Contains(s, "/") {
		return s
	}
	parts := splitComponents(s)
	sort.SliceStable(parts, func(i, j int) bool {
		return strings.ToLower(parts[i]) < strings.ToLower(parts[j])
	})
	return strings.Join(parts, Separator)
}

// NormalizeCase renders every component in Title Case.
// Example: "tech house / house" -> "Tech House / House"
func NormalizeCase(s string) string {
	if s == "" {
		return s
	}

	parts := splitComponents(s)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		upper := strings.ToUpper(p)
		switch {
		case acronyms[upper]:
			out = append(out, upper)
		case strings.ToLower(p) == "k-pop":
			out = append(out, "K-Pop")
		case strings.Contains(p, "&"):
			sides := strings.Split(p, "&")
			for i, side := range sides {
				sides[i] = capitalize(strings.TrimSpace(side))
			}
			out = append(out, strings.Join(sides, " & "))
		default:
			words := strings.Fields(p)
			for i, w := range words {
				words[i] = capitalize(w)
			}
			out = append(out, strings.Join(words, " "))
		}
	}
	return strings.Join(out, Separator)
}

// capitalize upper-cases the first rune and lower-cases the rest, so
// "dance-pop" stays "Dance-pop" and "HOUSE" becomes "House".
func capitalize(w string) string {
	if w == "" {
		return w
	}
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToTitle(r)) + strings.ToLower(w[size:])
}
