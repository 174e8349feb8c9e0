package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"biztrack/internal/config"
	"biztrack/internal/log"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// state is shared by every command of one invocation.
type state struct {
	configPath string
	logLevel   string
	output     string

	stderr io.Writer
	app    *App
}

// App builds the application on first use so that help and completion
// never touch the session store.
func (s *state) App(cmd *cobra.Command) (*App, error) {
	if s.app != nil {
		return s.app, nil
	}
	cfg, err := config.LoadFile(s.configPath)
	if err != nil {
		return nil, err
	}
	if s.logLevel != "" {
		cfg.LogLevel = s.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel, slog.LevelWarn),
		Component: log.ComponentApp,
		Format:    "text",
		Output:    s.stderr,
	})
	log.SetDefault(logger)

	app, err := NewApp(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	s.app = app
	return app, nil
}

func (s *state) close() error {
	if s.app == nil {
		return nil
	}
	return s.app.Close()
}

func newRootCmd(s *state) *cobra.Command {
	root := &cobra.Command{
		Use:   "biztrack",
		Short: "Track receipts, jobs and mileage against the BizTrack backend",
		Long: `biztrack is a command line client for the BizTrack backend. It lists
receipts, jobs and trip logs grouped by day, month, year, dimension or client,
resolves client, category and vehicle names, and keeps the account's
subscription in step with the app store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})
	root.PersistentFlags().StringVar(&s.configPath, "config", config.Path(), "Path to a TOML config file")
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&s.output, "output", "o", OutputTable, "Output format (table, json)")

	root.AddCommand(
		loginCmd(s),
		logoutCmd(s),
		whoamiCmd(s),
		signupCmd(s),
		receiptsCmd(s),
		jobsCmd(s),
		tripLogsCmd(s),
		clientsCmd(s),
		categoriesCmd(s),
		vehiclesCmd(s),
		accountCmd(s),
		eventsCmd(s),
		watchCmd(s),
	)
	return root
}

// Execute runs the command line with args and returns the process exit code.
func Execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &state{stderr: stderr}
	root := newRootCmd(s)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := s.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", describe(err))
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}
