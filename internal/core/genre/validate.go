package genre

import (
	"regexp"
	"strings"
)

// minArtistMatch is the shortest artist name worth treating as a leak.
const minArtistMatch = 4

// vagueGenres are rejected outright.
var vagueGenres = map[string]bool{
	"edm":        true,
	"dance":      true,
	"electronic": true,
	"club music": true,
	"music":      true,
}

// mixQualifiers may precede a trailing edit/mix/remix without turning the
// component into a genre ("extended mix", "club edit").
var mixQualifiers = map[string]bool{
	"original":     true,
	"extended":     true,
	"radio":        true,
	"club":         true,
	"dub":          true,
	"vocal":        true,
	"instrumental": true,
	"clean":        true,
	"dirty":        true,
	"short":        true,
	"intro":        true,
	"outro":        true,
	"quick":        true,
	"hype":         true,
	"official":     true,
	"vip":          true,
	"remix":        true,
	"edit":         true,
	"mix":          true,
}

var vagueWord = regexp.MustCompile(`\b(?:dance|edm|electronic)\b`)

// titleSpans matches the bracketed parts of a title, "(Extended Mix)" and the like.
var titleSpans = regexp.MustCompile(`\s*(?:\([^)]*\)|\[[^\]]*\])`)

// Validator drops genre components that say nothing about the track or that
// are really a person's name.
type Validator struct{}

// Validate returns the surviving components of candidate joined with " / ",
// or "" when every component was rejected. A component that merely repeats
// the song name from title is rejected too.
func (Validator) Validate(candidate, title, remixer, artists string) string {
	remixer = strings.ToLower(strings.TrimSpace(remixer))
	names := artistNames(artists)
	song := bareTitle(title)

	var kept []string
	for _, component := range splitComponents(candidate) {
		lower := strings.ToLower(component)
		if lower == "" || lower == song || rejectComponent(lower, remixer, names) {
			continue
		}
		kept = append(kept, component)
	}
	return strings.Join(kept, Separator)
}

func rejectComponent(lower, remixer string, artists []string) bool {
	if vagueGenres[lower] {
		return true
	}
	if len(vagueWord.FindAllString(lower, -1)) >= 2 {
		return true
	}
	if bareMixSuffix(lower) {
		return true
	}
	if remixer != "" && strings.Contains(lower, remixer) {
		return true
	}
	for _, a := range artists {
		if strings.Contains(lower, a) {
			return true
		}
	}
	return lower == "club"
}

// bareMixSuffix reports whether the component ends in edit/mix/remix with
// nothing but generic qualifiers in front of it.
func bareMixSuffix(lower string) bool {
	words := strings.Fields(lower)
	if len(words) == 0 {
		return false
	}
	switch words[len(words)-1] {
	case "edit", "mix", "remix":
	default:
		return false
	}
	for _, w := range words[:len(words)-1] {
		if !mixQualifiers[w] {
			return false
		}
	}
	return true
}

// artistNames returns the lowercase artist string and each comma separated
// name in it, keeping only those long enough to be meaningful.
func artistNames(artists string) []string {
	artists = strings.ToLower(strings.TrimSpace(artists))
	if len(artists) < minArtistMatch {
		return nil
	}

	names := []string{artists}
	if strings.Contains(artists, ",") {
		for _, n := range strings.Split(artists, ",") {
			n = strings.TrimSpace(n)
			if len(n) >= minArtistMatch && n != artists {
				names = append(names, n)
			}
		}
	}
	return names
}

// bareTitle returns the lowercase title without its bracketed spans.
func bareTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(titleSpans.ReplaceAllString(title, "")))
}
