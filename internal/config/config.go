// Package config loads user settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"InkJournal/internal/state"
)

// Config holds the settings. Zero values are never used directly; Load
// starts from Default and overlays the file.
type Config struct {
	Pdftoppm    string  `toml:"pdftoppm"`
	Ghostscript string  `toml:"ghostscript"`
	PrintDPI    int     `toml:"print_dpi"`
	ImportDPI   int     `toml:"import_dpi"`
	DefaultZoom float64 `toml:"default_zoom"`
	PageWidth   float64 `toml:"page_width"`
	PageHeight  float64 `toml:"page_height"`
	PageColor   string  `toml:"page_color"`
	PageStyle   string  `toml:"page_style"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Pdftoppm:    "pdftoppm",
		Ghostscript: "gs",
		PrintDPI:    150,
		ImportDPI:   100,
		DefaultZoom: 1.0,
		PageWidth:   612,
		PageHeight:  792,
		PageColor:   "white",
		PageStyle:   "lined",
	}
}

// DefaultPath is $XDG_CONFIG_HOME/inkjournal/config.toml, or its
// platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "inkjournal", "config.toml")
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return Config{}, fmt.Errorf("config: %s: unknown key %q", path, undec[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	var errs []error
	if c.Pdftoppm == "" {
		errs = append(errs, errors.New("pdftoppm must not be empty"))
	}
	if c.Ghostscript == "" {
		errs = append(errs, errors.New("ghostscript must not be empty"))
	}
	if c.PrintDPI <= 0 {
		errs = append(errs, fmt.Errorf("print_dpi must be positive, got %d", c.PrintDPI))
	}
	if c.ImportDPI <= 0 {
		errs = append(errs, fmt.Errorf("import_dpi must be positive, got %d", c.ImportDPI))
	}
	if c.DefaultZoom <= 0 {
		errs = append(errs, fmt.Errorf("default_zoom must be positive, got %g", c.DefaultZoom))
	}
	if c.PageWidth <= 0 || c.PageHeight <= 0 {
		errs = append(errs, fmt.Errorf("page size must be positive, got %gx%g", c.PageWidth, c.PageHeight))
	}
	if _, ok := state.PaperColors.Lookup(c.PageColor); !ok {
		errs = append(errs, fmt.Errorf("unknown page_color %q", c.PageColor))
	}
	if _, ok := state.ParseRuling(c.PageStyle); !ok {
		errs = append(errs, fmt.Errorf("unknown page_style %q", c.PageStyle))
	}
	return errors.Join(errs...)
}

// Template is the page a new journal starts with. c must be valid.
func (c Config) Template() state.PageTemplate {
	color, _ := state.PaperColors.Lookup(c.PageColor)
	ruling, _ := state.ParseRuling(c.PageStyle)
	return state.PageTemplate{
		Width:  c.PageWidth,
		Height: c.PageHeight,
		Color:  color,
		Ruling: ruling,
	}
}
