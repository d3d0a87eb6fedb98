package shared

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// WarningType represents different types of warnings
type WarningType int

const (
	ClassificationFailedWarning WarningType = iota
	LowBitrateWarning
	MissingTitleWarning
	UnknownGenreWarning
	GenreRejectedWarning
	LibraryWarning
	RatingMirrorWarning
	MissingArtworkWarning
)

// Warning represents a single warning with context
type Warning struct {
	Type    WarningType
	Message string
	Context string // track title or file
	Details string // reason, bitrate, offending genre...
}

// WarningCollector collects per-track problems during a run so they can be
// listed together at the end. It is safe for concurrent use.
type WarningCollector struct {
	mu       sync.Mutex
	warnings []Warning
	enabled  bool
}

// NewWarningCollector creates a new warning collector
func NewWarningCollector(enabled bool) *WarningCollector {
	return &WarningCollector{
		warnings: make([]Warning, 0),
		enabled:  enabled,
	}
}

// AddWarning adds a warning to the collector
func (wc *WarningCollector) AddWarning(warningType WarningType, context, message, details string) {
	if wc == nil || !wc.enabled {
		return
	}

	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.warnings = append(wc.warnings, Warning{
		Type:    warningType,
		Message: message,
		Context: context,
		Details: details,
	})
}

// AddClassificationFailedWarning records a track whose classification failed.
func (wc *WarningCollector) AddClassificationFailedWarning(title, reason string) {
	wc.AddWarning(ClassificationFailedWarning, title, "Classification failed", reason)
}

// AddLowBitrateWarning records a file skipped for its bitrate.
func (wc *WarningCollector) AddLowBitrateWarning(file string, bitrate int) {
	wc.AddWarning(LowBitrateWarning, file, "Bitrate below minimum", FormatKbps(bitrate))
}

// AddMissingTitleWarning records a file without a title tag.
func (wc *WarningCollector) AddMissingTitleWarning(file string) {
	wc.AddWarning(MissingTitleWarning, file, "Missing title metadata", "")
}

// AddUnknownGenreWarning records a genre absent from the energy map.
func (wc *WarningCollector) AddUnknownGenreWarning(title, genre string) {
	wc.AddWarning(UnknownGenreWarning, title, "Genre not in energy map", genre)
}

// AddGenreRejectedWarning records a track whose genre candidates were all rejected.
func (wc *WarningCollector) AddGenreRejectedWarning(title, reason string) {
	wc.AddWarning(GenreRejectedWarning, title, "Genre rejected", reason)
}

// AddLibraryWarning records a library database failure for a track.
func (wc *WarningCollector) AddLibraryWarning(title, details string) {
	wc.AddWarning(LibraryWarning, title, "Library update failed", details)
}

// AddRatingMirrorWarning records a failed rating push to the media server.
func (wc *WarningCollector) AddRatingMirrorWarning(title, details string) {
	wc.AddWarning(RatingMirrorWarning, title, "Rating mirror failed", details)
}

// AddMissingArtworkWarning records a tagged file without embedded artwork.
func (wc *WarningCollector) AddMissingArtworkWarning(file string) {
	wc.AddWarning(MissingArtworkWarning, file, "No embedded artwork", "")
}

// HasWarnings returns true if there are any warnings
func (wc *WarningCollector) HasWarnings() bool {
	return wc.GetWarningCount() > 0
}

// GetWarningCount returns the total number of warnings
func (wc *WarningCollector) GetWarningCount() int {
	if wc == nil {
		return 0
	}
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return len(wc.warnings)
}

// GetWarningsByType returns warnings grouped by type
func (wc *WarningCollector) GetWarningsByType() map[WarningType][]Warning {
	grouped := make(map[WarningType][]Warning)
	if wc == nil {
		return grouped
	}
	wc.mu.Lock()
	defer wc.mu.Unlock()
	for _, warning := range wc.warnings {
		grouped[warning.Type] = append(grouped[warning.Type], warning)
	}
	return grouped
}

// PrintSummary prints a formatted summary of all warnings
func (wc *WarningCollector) PrintSummary() {
	if !wc.HasWarnings() {
		return
	}

	ColorWarning.Printf("\n⚠️  Summary of issues (%d):\n", wc.GetWarningCount())
	ColorWarning.Println(strings.Repeat("─", 60))

	grouped := wc.GetWarningsByType()

	var types []WarningType
	for warningType := range grouped {
		types = append(types, warningType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, warningType := range types {
		wc.printWarningTypeSection(warningType, grouped[warningType])
	}

	if len(grouped[ClassificationFailedWarning]) > 0 {
		ColorInfo.Println("\n💡 Tip: wait for the quota to reset and run again to process failed files.")
	}
	if len(grouped[UnknownGenreWarning]) > 0 {
		ColorInfo.Println("💡 Tip: add the unknown genres to your energy map and run again.")
	}
}

// printWarningTypeSection prints warnings for a specific type
func (wc *WarningCollector) printWarningTypeSection(warningType WarningType, warnings []Warning) {
	if len(warnings) == 0 {
		return
	}

	ColorWarning.Printf("\n%s (%d):\n", wc.getWarningTypeTitle(warningType), len(warnings))

	lines := make([]string, 0, len(warnings))
	for _, w := range warnings {
		if w.Details != "" {
			lines = append(lines, fmt.Sprintf("%s → %s", w.Context, w.Details))
		} else {
			lines = append(lines, w.Context)
		}
	}
	sort.Strings(lines)

	for _, line := range lines {
		ColorWarning.Printf("  • %s\n", line)
	}
}

// getWarningTypeTitle returns a human-readable title for a warning type
func (wc *WarningCollector) getWarningTypeTitle(warningType WarningType) string {
	switch warningType {
	case ClassificationFailedWarning:
		return "❌ Files failed after retries"
	case LowBitrateWarning:
		return "Files skipped (low bitrate)"
	case MissingTitleWarning:
		return "Files missing title metadata"
	case UnknownGenreWarning:
		return "Unknown genres found"
	case GenreRejectedWarning:
		return "Tracks skipped (no valid genre)"
	case LibraryWarning:
		return "Library database failures"
	case RatingMirrorWarning:
		return "Media server rating failures"
	case MissingArtworkWarning:
		return "Files without artwork"
	default:
		return "Other Warnings"
	}
}
