package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// App returns the gosession application writing to out.
func App(out io.Writer) *cli.App {
	if out == nil {
		out = os.Stdout
	}
	return &cli.App{
		Name:    "gosession",
		Usage:   "Settlement back office session tool",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Writer:  out,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			loginCommand(),
			whoamiCommand(),
			refreshCommand(),
			logoutCommand(),
			checkCommand(),
			getCommand(),
			uploadCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"GOSESSION_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "api",
			Usage:   "Backend base URL, overrides api.baseurl",
			EnvVars: []string{"GOSESSION_API_BASEURL"},
		},
		&cli.StringFlag{
			Name:    "state-dir",
			Usage:   "Directory holding the session between invocations",
			EnvVars: []string{"GOSESSION_STATE_DIR"},
			Value:   defaultStateDir(),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "trace, debug, info, warn or error",
			EnvVars: []string{"GOSESSION_LOG_LEVEL"},
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Print results as JSON",
		},
	}
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".gosession"
	}
	return filepath.Join(dir, "gosession")
}
