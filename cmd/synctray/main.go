package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/openmined/synctray/internal/config"
	"github.com/openmined/synctray/internal/logging"
	"github.com/openmined/synctray/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "SYNCTRAY"

// app carries what the subcommands share once the root command has resolved
// its configuration.
type app struct {
	v        *viper.Viper
	stderr   io.Writer
	cfg      *config.Config
	log      *slog.Logger
	closeLog func() error
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "synctray",
		Short:         "Track the sync state of daemon directories",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("format", "f", config.DefaultFormat, "Output format: table, json or yaml")
	flags.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.String("log-file", "", "Also write logs to this file")
	flags.String("my-id", "", "Device ID of the local daemon, never counted as a sharing device")
	flags.Int("recent-changes", config.DefaultRecentChanges, "Number of recent file changes to keep")
	flags.Uint64("block-size", 0, "Block size in bytes used for download progress (0 uses the daemon default)")

	rootCmd.AddCommand(newReplayCmd(a))
	rootCmd.AddCommand(newLabelsCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))
	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd, a.v)
	if err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger, closeLog, err := logging.New(logging.Options{
		Level:    level,
		Console:  a.stderr,
		FilePath: cfg.LogFile,
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logger
	a.closeLog = closeLog
	slog.SetDefault(logger)
	return nil
}

func (a *app) close() error {
	if a.closeLog == nil {
		return nil
	}
	return a.closeLog()
}

// loadConfig resolves flags and SYNCTRAY_* environment variables into a
// validated Config. No config file is read.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"format":         "format",
		"log_level":      "log-level",
		"log_file":       "log-file",
		"my_id":          "my-id",
		"recent_changes": "recent-changes",
		"block_size":     "block-size",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %q: %w", flag, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := &config.Config{}
	err := v.Unmarshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.LogFile != "" {
		if cfg.LogFile, err = config.ResolvePath(cfg.LogFile); err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run executes the CLI and releases the log file afterwards.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{v: viper.New(), stderr: stderr}
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", color.New(color.FgHiRed, color.Bold).Sprint("ERROR"), err)
		stop()
		os.Exit(1)
	}
}
