package cmd

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// Config holds the numeric knobs spec.md names, loadable from a TOML
// file via --config and overridable by any subcommand's own flags.
type Config struct {
	K           int     `toml:"k"`
	CaseMin     int     `toml:"case_min"`
	CtrlMax     int     `toml:"ctrl_max"`
	AbundScreen int     `toml:"abund_screen"`
	BytesBudget int64   `toml:"bytes_budget"`

	SeedSpacing int `toml:"seed_spacing"`
	DeltaL      int `toml:"delta_l"`

	MatchScore    int `toml:"match_score"`
	MismatchScore int `toml:"mismatch_score"`
	GapOpen       int `toml:"gap_open"`
	GapExtend     int `toml:"gap_extend"`

	TerminalDistance int `toml:"terminal_distance"`
	MergeWindow      int `toml:"merge_window"`
}

// defaultConfig mirrors spec.md §3's suggested defaults.
func defaultConfig() Config {
	return Config{
		K:           31,
		CaseMin:     5,
		CtrlMax:     0,
		AbundScreen: 5000,
		BytesBudget: 1 << 30,

		SeedSpacing: 10,
		DeltaL:      500,

		MatchScore:    1,
		MismatchScore: -4,
		GapOpen:       -6,
		GapExtend:     -1,

		TerminalDistance: 12,
		MergeWindow:      10,
	}
}

// defaultConfigPath returns $HOME/.config/knovel/config.toml, the way
// the teacher's tools locate user-level defaults relative to $HOME.
func defaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "knovel", "config.toml")
}

// loadConfig reads path if it exists, overlaying values onto the
// defaults; a missing file at the default path is not an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = defaultConfigPath()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// effectiveInt returns the flag's own value when the caller explicitly set
// it on the command line, falling back to a value from the loaded TOML
// config otherwise (spec.md §3: "a subcommand's own flags override the
// config file's values").
func effectiveInt(cmd *cobra.Command, flag string, cfgVal int) int {
	if cmd.Flags().Changed(flag) {
		return getFlagInt(cmd, flag)
	}
	return cfgVal
}
