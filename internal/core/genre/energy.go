package genre

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	MinEnergy = 1
	MaxEnergy = 5
)

// EnergyLevel is one row of the energy table.
type EnergyLevel struct {
	Level  int
	Genres []string
}

// EnergyMap maps energy levels to lowercase genre names. Rows keep the order
// they were declared in; that order breaks ties when a genre is listed at
// more than one level.
type EnergyMap []EnergyLevel

// NewEnergyMap builds a map from a level -> genres table. Levels are taken in
// ascending order since Go maps carry no order of their own.
func NewEnergyMap(table map[int][]string) (EnergyMap, error) {
	levels := make([]int, 0, len(table))
	for level := range table {
		levels = append(levels, level)
	}
	sort.Ints(levels)

	m := make(EnergyMap, 0, len(levels))
	for _, level := range levels {
		row, err := newLevel(level, table[level])
		if err != nil {
			return nil, err
		}
		m = append(m, row)
	}
	return m, nil
}

func newLevel(level int, genres []string) (EnergyLevel, error) {
	if level < MinEnergy || level > MaxEnergy {
		return EnergyLevel{}, fmt.Errorf("energy level %d out of range %d-%d", level, MinEnergy, MaxEnergy)
	}
	row := EnergyLevel{Level: level}
	for _, g := range genres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g != "" {
			row.Genres = append(row.Genres, g)
		}
	}
	return row, nil
}

func parseLevel(key string) (int, error) {
	level, err := strconv.Atoi(strings.TrimSpace(key))
	if err != nil {
		return 0, fmt.Errorf("invalid energy level %q: %w", key, err)
	}
	return level, nil
}

// UnmarshalJSON decodes {"1": [...], "2": [...]} keeping the key order of the document.
func (m *EnergyMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read energy map: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("energy map must be a JSON object")
	}

	var out EnergyMap
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read energy level: %w", err)
		}
		key, _ := tok.(string)
		level, err := parseLevel(key)
		if err != nil {
			return err
		}
		var genres []string
		if err := dec.Decode(&genres); err != nil {
			return fmt.Errorf("failed to decode genres for level %s: %w", key, err)
		}
		row, err := newLevel(level, genres)
		if err != nil {
			return err
		}
		out = append(out, row)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read energy map: %w", err)
	}
	*m = out
	return nil
}

// UnmarshalYAML decodes a YAML mapping keeping the key order of the document.
func (m *EnergyMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("energy map must be a mapping (line %d)", node.Line)
	}

	var out EnergyMap
	for i := 0; i+1 < len(node.Content); i += 2 {
		level, err := parseLevel(node.Content[i].Value)
		if err != nil {
			return err
		}
		var genres []string
		if err := node.Content[i+1].Decode(&genres); err != nil {
			return fmt.Errorf("failed to decode genres for level %d: %w", level, err)
		}
		row, err := newLevel(level, genres)
		if err != nil {
			return err
		}
		out = append(out, row)
	}
	*m = out
	return nil
}

// LoadEnergyMap reads an energy map from a .json, .yaml or .yml file.
func LoadEnergyMap(path string) (EnergyMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read energy map: %w", err)
	}

	var m EnergyMap
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse energy map %s: %w", path, err)
	}
	return m, nil
}

// Vocabulary returns every genre name in the map, in map order.
func (m EnergyMap) Vocabulary() []string {
	var all []string
	for _, row := range m {
		all = append(all, row.Genres...)
	}
	return all
}

// IsMashup reports whether a genre is exempt from rating.
func IsMashup(genre string) bool {
	return strings.Contains(strings.ToLower(genre), "mashup")
}

// Rate returns the energy rating for a canonical genre: the highest level
// matched by any of its components. Mashups are never rated.
func (m EnergyMap) Rate(genre string) (int, bool) {
	if IsMashup(genre) {
		return 0, false
	}

	best, found := 0, false
	for _, component := range splitComponents(strings.ToLower(genre)) {
		level, ok := m.rateComponent(component)
		if ok && (!found || level > best) {
			best, found = level, true
		}
	}
	return best, found
}

func (m EnergyMap) rateComponent(component string) (int, bool) {
	if component == "" {
		return 0, false
	}

	// exact membership first
	for _, row := range m {
		for _, g := range row.Genres {
			if g == component {
				return row.Level, true
			}
		}
	}

	for _, row := range m {
		sorted := append([]string(nil), row.Genres...)
		sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
		for _, g := range sorted {
			if strings.Contains(component, g) {
				return row.Level, true
			}
		}
	}
	return 0, false
}
