package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"autotag/internal/config"
	"autotag/internal/ledger"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// writeConfig stores a config with an energy map and ledger in a temp dir
// and returns the config path.
func writeConfig(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	dir := t.TempDir()

	energyPath := filepath.Join(dir, "energy_map.json")
	energy := `{"2": ["deep house"], "4": ["afro house", "tech house"]}`
	if err := os.WriteFile(energyPath, []byte(energy), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.GetDefaultConfig()
	cfg.MusicDir = filepath.Join(dir, "music")
	cfg.EnergyMapPath = energyPath
	cfg.LedgerPath = filepath.Join(dir, "processed_songs.json")
	cfg.AI.APIKey = "test-key"
	cfg.Search.Provider = ""
	if mutate != nil {
		mutate(cfg)
	}

	path := filepath.Join(dir, "config.json")
	if err := config.SaveConfig(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEnergyCommand(t *testing.T) {
	cfgPath := writeConfig(t, nil)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"print map", nil, "4: afro house, tech house"},
		{"rated genre", []string{"tech house / afro house"}, "Afro House / Tech House: 4"},
		{"highest component wins", []string{"Deep House / Tech House"}, "Deep House / Tech House: 4"},
		{"mashup", []string{"House Mashup"}, "not rated (mashup)"},
		{"unknown", []string{"Polka"}, "Polka: not in energy map"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"energy", "--config", cfgPath}, tt.args...)
			out, err := execute(t, args...)
			if err != nil {
				t.Fatalf("energy: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q does not contain %q", out, tt.want)
			}
		})
	}
}

func TestLedgerCommands(t *testing.T) {
	var ledgerPath string
	cfgPath := writeConfig(t, func(cfg *config.Config) { ledgerPath = cfg.LedgerPath })

	l, err := ledger.Load(ledgerPath)
	if err != nil {
		t.Fatal(err)
	}
	l.Mark("Song A")
	l.Mark("Song B")
	if err := l.Save(); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "ledger", "list", "--config", cfgPath)
	if err != nil {
		t.Fatalf("ledger list: %v", err)
	}
	if out != "Song A\nSong B\n" {
		t.Errorf("ledger list = %q", out)
	}

	out, err = execute(t, "ledger", "forget", "--config", cfgPath, "Song A", "Missing")
	if err != nil {
		t.Fatalf("ledger forget: %v", err)
	}
	if !strings.Contains(out, "forgot Song A") || !strings.Contains(out, "not in ledger: Missing") {
		t.Errorf("unexpected forget output %q", out)
	}

	reloaded, err := ledger.Load(ledgerPath)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Done("Song A") || !reloaded.Done("Song B") {
		t.Errorf("ledger after forget = %v", reloaded.Titles())
	}
}

func TestConfigInitDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "config.json")

	if _, err := execute(t, "config", "init", "--defaults", "--config", path, "--music-dir", "/music"); err != nil {
		t.Fatalf("config init: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MusicDir != "/music" {
		t.Errorf("MusicDir = %q, want /music", cfg.MusicDir)
	}
	if cfg.BitrateMin != config.DefaultBitrateMin {
		t.Errorf("BitrateMin = %d, want default", cfg.BitrateMin)
	}

	if _, err := execute(t, "config", "init", "--defaults", "--config", path); err == nil {
		t.Error("expected an error when the file exists without --force")
	}
	if _, err := execute(t, "config", "init", "--defaults", "--force", "--config", path); err != nil {
		t.Errorf("config init --force: %v", err)
	}
}

func TestRunEmptyFolder(t *testing.T) {
	cfgPath := writeConfig(t, nil)
	music := t.TempDir()

	if _, err := execute(t, "run", "--config", cfgPath, "--no-library", music); err != nil {
		t.Errorf("run on an empty folder: %v", err)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	cfgPath := writeConfig(t, func(cfg *config.Config) {
		cfg.AI.Provider = "nonsense"
	})

	_, err := execute(t, "run", "--config", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "unknown AI provider") {
		t.Errorf("expected a validation error, got %v", err)
	}
}
