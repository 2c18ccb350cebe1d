// Package settings loads and persists the keyed configuration document
// (config.yaml) described in the CLI surface: homepage, download path,
// wrapping width, history toggle, and keybindings.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Keybindings maps the closed command set to single key strings. Zero value
// fields fall back to the defaults applied by Defaults().
type Keybindings struct {
	OpenURL        string `yaml:"open_url,omitempty"`
	Back           string `yaml:"back,omitempty"`
	Reload         string `yaml:"reload,omitempty"`
	Save           string `yaml:"save,omitempty"`
	InfoLink       string `yaml:"info_link,omitempty"`
	AddBookmark    string `yaml:"add_bookmark,omitempty"`
	NextLink       string `yaml:"next_link,omitempty"`
	PrevLink       string `yaml:"prev_link,omitempty"`
	LineDown       string `yaml:"line_down,omitempty"`
	LineUp         string `yaml:"line_up,omitempty"`
	PageDown       string `yaml:"page_down,omitempty"`
	Search         string `yaml:"search,omitempty"`
	SearchNext     string `yaml:"search_next,omitempty"`
	SearchPrev     string `yaml:"search_prev,omitempty"`
	Quit           string `yaml:"quit,omitempty"`
}

// DefaultKeybindings mirrors the source client's single-character defaults.
func DefaultKeybindings() Keybindings {
	return Keybindings{
		OpenURL: "g", Back: "b", Reload: "r", Save: "s", InfoLink: "i",
		AddBookmark: "a", NextLink: "l", PrevLink: "L", LineDown: "j",
		LineUp: "k", PageDown: " ", Search: "/", SearchNext: "n",
		SearchPrev: "N", Quit: "q",
	}
}

// Settings is the full keyed configuration document.
type Settings struct {
	Homepage         string       `yaml:"homepage"`
	DownloadPath     string       `yaml:"download_path"`
	Darkmode         bool         `yaml:"darkmode"`
	Textwrap         int          `yaml:"textwrap"`
	DisableHistory   bool         `yaml:"disable_history"`
	DisableIdentities bool        `yaml:"disable_identities"`
	HTMLCommand      string       `yaml:"html_command,omitempty"`
	ImageCommand     string       `yaml:"image_command,omitempty"`
	TelnetCommand    string       `yaml:"telnet_command,omitempty"`
	Keybindings      Keybindings  `yaml:"keybindings"`
}

// Defaults returns the configuration used when no config file exists yet,
// matching the source client's defaults.
func Defaults() Settings {
	return Settings{
		Homepage:     "about:help",
		DownloadPath: "",
		Darkmode:     false,
		Textwrap:     80,
		Keybindings:  DefaultKeybindings(),
	}
}

// Load reads path and merges it over Defaults(); a missing file yields
// Defaults() unmodified rather than an error.
func Load(path string) (Settings, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path atomically (temp file + rename in the same
// directory).
func Save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("settings: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
