package genre

import (
	"strings"
)

// Field identifies one labelled line of a classification reply.
type Field int

const (
	FieldIsRemix Field = iota
	FieldGenre
	FieldOriginalArtists
	FieldReleaseYear
	FieldSituation
	FieldCommercialFriendly
)

// replyLabels maps the lowercase line label to the field it fills.
var replyLabels = map[string]Field{
	"is remix":              FieldIsRemix,
	"genre":                 FieldGenre,
	"original artists":      FieldOriginalArtists,
	"original song release": FieldReleaseYear,
	"situation":             FieldSituation,
	"commercial friendly":   FieldCommercialFriendly,
}

// Situation is the venue a track suits.
type Situation string

const (
	SituationBar  Situation = "Bar"
	SituationClub Situation = "Club"
	SituationBoth Situation = "Both"
)

// ParseSituation maps free text onto a Situation; ok is false when the text
// names neither venue.
func ParseSituation(s string) (Situation, bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	bar := strings.Contains(lower, "bar")
	club := strings.Contains(lower, "club")
	switch {
	case strings.Contains(lower, "both"), bar && club:
		return SituationBoth, true
	case bar:
		return SituationBar, true
	case club:
		return SituationClub, true
	}
	return "", false
}

// WantsBar reports whether the track belongs in the Bar tag.
func (s Situation) WantsBar() bool { return s == SituationBar || s == SituationBoth }

// WantsClub reports whether the track belongs in the Club tag.
func (s Situation) WantsClub() bool { return s == SituationClub || s == SituationBoth }

// Reply is the typed form of the classifier's free-text answer. Every field
// is optional; use Has to tell "absent" from a zero value.
type Reply struct {
	IsRemix            bool
	Genre              string
	OriginalArtists    string
	ReleaseYear        string
	Situation          Situation
	CommercialFriendly bool

	present map[Field]bool
}

// Has reports whether the reply contained the given line.
func (r Reply) Has(f Field) bool {
	return r.present[f]
}

// Empty reports whether no line of the reply was recognised.
func (r Reply) Empty() bool {
	return len(r.present) == 0
}

func (r *Reply) mark(f Field) {
	if r.present == nil {
		r.present = make(map[Field]bool)
	}
	r.present[f] = true
}

// ParseReply turns a classifier reply into a Reply. Lines may come in any
// order; unknown lines are ignored and it never fails.
func ParseReply(text string) Reply {
	var r Reply
	for _, line := range strings.Split(text, "\n") {
		label, value, ok := splitReplyLine(line)
		if !ok {
			continue
		}
		field, known := replyLabels[label]
		if !known {
			continue
		}

		switch field {
		case FieldIsRemix:
			r.IsRemix = strings.EqualFold(value, "yes")
		case FieldGenre:
			r.Genre = SortGenre(value)
		case FieldOriginalArtists:
			r.OriginalArtists = value
		case FieldReleaseYear:
			r.ReleaseYear = value
		case FieldSituation:
			s, ok := ParseSituation(value)
			if !ok {
				continue
			}
			r.Situation = s
		case FieldCommercialFriendly:
			r.CommercialFriendly = strings.EqualFold(value, "yes")
		}
		r.mark(field)
	}
	return r
}

// splitReplyLine splits "Label: value" and normalises the label. Markdown
// bullets and bold markers around the label are dropped.
func splitReplyLine(line string) (string, string, bool) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	line = strings.TrimLeft(line, "-*• ")
	label, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	label = strings.ToLower(strings.TrimSpace(strings.Trim(label, "* ")))
	value = strings.TrimSpace(strings.Trim(strings.TrimSpace(value), "*"))
	return label, strings.TrimSpace(value), true
}
