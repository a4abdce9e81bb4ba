// Package cli wires the transcription pipeline into the lingoscribe command
// tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/lingoreel/lingoscribe/internal/config"
	"github.com/lingoreel/lingoscribe/internal/logging"
	"github.com/lingoreel/lingoscribe/internal/version"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer

	// Injectable for command tests.
	transcribeFn func(ctx context.Context, mediaPath, language, jobID string) (string, error)
}

func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *appState) {
	app := &appState{out: os.Stdout}
	app.transcribeFn = app.transcribeMedia

	cmd := &cobra.Command{
		Use:           "lingoscribe",
		Short:         "Chunked, parallel speech-to-text for language-learning media",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger

			cfg, err := config.Load(app.configPath)
			if err != nil {
				return err
			}
			app.cfg = cfg
			return nil
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", false, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", false, "Enable JSON logging")
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", false, "Disable progress indicators")
	cmd.PersistentFlags().StringVar(&app.configPath, "config", "", "Path to a TOML config file")

	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newJobsCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd, app
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) appConfig() *config.Config {
	if a.cfg == nil {
		return config.Default()
	}
	return a.cfg
}
