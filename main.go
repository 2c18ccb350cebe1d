// Command ncgopher is a terminal client for Gopher, Gemini and Finger.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	goflags "github.com/jessevdk/go-flags"

	"github.com/jansc/ncgopher/internal/applog"
	"github.com/jansc/ncgopher/internal/bookmarks"
	"github.com/jansc/ncgopher/internal/clientcert"
	"github.com/jansc/ncgopher/internal/controller"
	"github.com/jansc/ncgopher/internal/gurl"
	"github.com/jansc/ncgopher/internal/history"
	"github.com/jansc/ncgopher/internal/settings"
	"github.com/jansc/ncgopher/internal/trust"
)

const version = "0.1.0"

// options is the flat, single-command flag set: a positional URL plus the
// ambient --debug/--config/--version/--help surface, declared the way the
// rest of this ecosystem declares its CLI flags.
type options struct {
	Debug   string `short:"d" long:"debug" description:"Append debug log messages to PATH" value-name:"PATH"`
	Config  string `long:"config" description:"Load config.yaml and friends from PATH instead of the default config directory" value-name:"PATH"`
	Version bool   `short:"V" long:"version" description:"Show version and exit"`

	Positional struct {
		URL string `positional-arg-name:"URL" description:"Gopher, Gemini or Finger URL to open at startup"`
	} `positional-args:"yes"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// Exit codes: 0 normal exit, 1 fatal configuration error (bad flags, an
// unreadable or malformed store), 2 terminal/program initialisation failure.
func run(args []string) int {
	var opts options
	parser := goflags.NewParser(&opts, goflags.Default)
	parser.Name = "ncgopher"
	parser.LongDescription = "A terminal client for Gopher, Gemini and Finger."

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if opts.Version {
		fmt.Printf("ncgopher %s\n", version)
		return 0
	}

	configDir := opts.Config
	if configDir == "" {
		configDir = os.Getenv("NCGOPHER_CONFIG_DIR")
	}
	if configDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "ncgopher: could not determine config directory:", err)
			return 1
		}
		configDir = filepath.Join(dir, "ncgopher")
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "ncgopher: could not create config directory:", err)
		return 1
	}

	if opts.Debug != "" {
		if err := applog.Init(opts.Debug); err != nil {
			fmt.Fprintln(os.Stderr, "ncgopher: could not open debug log:", err)
			return 1
		}
		defer applog.Close()
	}

	s, err := settings.Load(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "ncgopher:", err)
		return 1
	}

	hist, err := history.Open(filepath.Join(configDir, "history.db"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "ncgopher:", err)
		return 1
	}
	defer hist.Close()

	bm, err := bookmarks.Open(filepath.Join(configDir, "bookmarks.yaml"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "ncgopher:", err)
		return 1
	}

	ts, err := trust.Open(filepath.Join(configDir, "hosts"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "ncgopher:", err)
		return 1
	}

	var cs *clientcert.Store
	if !s.DisableIdentities {
		cs, err = clientcert.Load(filepath.Join(configDir, "client_certificates.yaml"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "ncgopher:", err)
			return 1
		}
	}

	var startURL gurl.URL
	if opts.Positional.URL != "" {
		startURL, err = gurl.Parse(opts.Positional.URL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ncgopher: invalid URL:", err)
			return 1
		}
	}

	m := controller.New(startURL, hist, bm, ts, cs, s)
	program := tea.NewProgram(&m, tea.WithAltScreen())
	m.SetProgram(program)

	if _, err := program.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "ncgopher: terminal error:", err)
		return 2
	}
	return 0
}
