package genre

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	minBPM = 60
	maxBPM = 200
)

// RemixInfo holds the signals pulled out of a track title.
type RemixInfo struct {
	IsRemix       bool
	RemixerName   string
	EmbeddedGenre string
	IsTransition  bool
	IsClubMix     bool
}

var (
	// parenthesised spans are tried before bracketed ones
	remixSpanPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\(([^)]+?)\s+(?:Remix|Edit|Bootleg|Flip|VIP|Rework|Refix|Mix)\)`),
		regexp.MustCompile(`(?i)\[([^\]]+?)\s+(?:Remix|Edit|Bootleg|Flip|VIP|Rework|Refix|Mix)\]`),
	}
	djPrefix          = regexp.MustCompile(`^(?:DJ\s+|dj\s+)`)
	transitionPattern = regexp.MustCompile(`\b(\d{2,3})-(\d{2,3})\b`)
	clubMixPattern    = regexp.MustCompile(`(?i)\bclub\s+(?:mix|version|edit|remix)\b`)

	// phrasePatterns maps a lowercase genre phrase to its word-bounded pattern.
	phrasePatterns sync.Map
)

// remixSpan returns the text in front of the remix token of the first
// matching span, e.g. "Ale Lucchi" for "Song (Ale Lucchi Remix)".
func remixSpan(title string) (string, bool) {
	for _, p := range remixSpanPatterns {
		if m := p.FindStringSubmatch(title); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ExtractRemixer returns the remixer named in a title, or "" when the title
// has no remix span. "Song (Original Mix)" yields "Original".
func ExtractRemixer(title string) string {
	span, ok := remixSpan(title)
	if !ok {
		return ""
	}
	remixer := strings.TrimSpace(span)
	remixer = djPrefix.ReplaceAllString(remixer, "")
	return strings.TrimSpace(remixer)
}

// ExtractEmbeddedGenre looks for a known multi-word genre inside the remix
// span of a title, e.g. "Song (Esquire Afro House Remix)" -> "Afro House".
// Single-word genres are ignored; they collide with artist names too often.
func ExtractEmbeddedGenre(title string, energy EnergyMap) string {
	phrase := embeddedPhrase(title, energy)
	if phrase == "" {
		return ""
	}
	return NormalizeCase(phrase)
}

// embeddedPhrase returns the lowercase genre phrase matched inside the remix span.
func embeddedPhrase(title string, energy EnergyMap) string {
	span, ok := remixSpan(title)
	if !ok {
		return ""
	}
	content := strings.ToLower(span)

	var candidates []string
	seen := make(map[string]bool)
	for _, g := range energy.Vocabulary() {
		if seen[g] || !strings.ContainsAny(g, " &-") {
			continue
		}
		seen[g] = true
		candidates = append(candidates, g)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) > len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})

	for _, g := range candidates {
		if phrasePattern(g).MatchString(content) {
			return g
		}
	}
	return ""
}

// phrasePattern returns the compiled pattern for a genre phrase, compiling it
// on first use.
func phrasePattern(phrase string) *regexp.Regexp {
	if re, ok := phrasePatterns.Load(phrase); ok {
		return re.(*regexp.Regexp)
	}
	re, _ := phrasePatterns.LoadOrStore(phrase, regexp.MustCompile(`\b`+regexp.QuoteMeta(phrase)+`\b`))
	return re.(*regexp.Regexp)
}

// DetectTransition reports whether a title carries a BPM transition marker
// such as "128-94", with both values in a plausible BPM range.
func DetectTransition(title string) bool {
	for _, m := range transitionPattern.FindAllStringSubmatch(title, -1) {
		from, err1 := strconv.Atoi(m[1])
		to, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		if from >= minBPM && from <= maxBPM && to >= minBPM && to <= maxBPM {
			return true
		}
	}
	return false
}

// DetectClubMix reports whether a title names a club mix/version/edit/remix.
func DetectClubMix(title string) bool {
	return clubMixPattern.MatchString(title)
}

// Analyze runs every title extractor. When the embedded genre closes the
// remix span it is trimmed off the remixer name, so
// "Dynamite (Ale Lucchi Afro House Remix)" names "Ale Lucchi" as remixer and
// "Song (Afro House Remix)" names nobody.
func Analyze(title string, isRemix bool, energy EnergyMap) RemixInfo {
	info := RemixInfo{
		IsRemix:      isRemix,
		RemixerName:  ExtractRemixer(title),
		IsTransition: DetectTransition(title),
		IsClubMix:    DetectClubMix(title),
	}

	phrase := embeddedPhrase(title, energy)
	if phrase == "" {
		return info
	}
	info.EmbeddedGenre = NormalizeCase(phrase)

	lower := strings.ToLower(info.RemixerName)
	if len(lower) == len(info.RemixerName) && strings.HasSuffix(lower, phrase) {
		info.RemixerName = strings.TrimSpace(info.RemixerName[:len(info.RemixerName)-len(phrase)])
	}
	return info
}
