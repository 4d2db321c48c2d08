package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/go-pkgz/lgr"
	"github.com/spf13/cobra"

	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/config"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/coordinator"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/lock"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/state"
	"github.com/INS-JVidal/rsync-bidirectional-sync/internal/transport"
)

var (
	profileName    string
	configPath     string
	dryRun         bool
	verbose        bool
	nonInteractive bool
)

var rootCmd = &cobra.Command{
	Use:   "rsync-sync",
	Short: "rsync-sync keeps a local directory and a remote directory in sync over ssh",
	Long: `a bidirectional directory-sync tool built on ssh and rsync.
it tracks a per-profile manifest of the last known-good state and uses it to
resolve pushes, pulls, deletions, and conflicts on every run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context())
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "run one sync cycle for a profile",
	Long:  `scans both sides, diffs against the last known state, and executes the resulting actions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "report what a sync would do without doing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context())
	},
}

var resetStateCmd = &cobra.Command{
	Use:   "reset-state",
	Short: "discard the persisted manifest for a profile",
	Long:  `forces the next sync to treat every path as if this were the first run, useful after manual recovery.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResetState()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "print the resolved configuration for a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := config.NewManager(configPath)
		cfg, err := mgr.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		fmt.Printf("config file: %s\n", mgr.Path())
		fmt.Printf("remote: %s@%s:%d\n", cfg.Remote.User, cfg.Remote.Host, cfg.Remote.Port)
		fmt.Printf("local dir: %s\n", cfg.Sync.LocalDir)
		fmt.Printf("remote dir: %s\n", cfg.Sync.RemoteDir)
		fmt.Printf("conflict strategy: %s\n", cfg.Sync.ConflictStrategy)
		fmt.Printf("propagate deletes: %v\n", cfg.Sync.PropagateDeletes)
		fmt.Printf("checksum verify: %v\n", cfg.Sync.ChecksumVerify)
		if cfg.Sync.BandwidthLimitKB > 0 {
			fmt.Printf("bandwidth limit: %s/s\n", humanize.Bytes(uint64(cfg.Sync.BandwidthLimitKB)*1024))
		}
		if cfg.Sync.MaxFileSize > 0 {
			fmt.Printf("max file size: %s\n", humanize.Bytes(uint64(cfg.Sync.MaxFileSize)))
		}
		return nil
	},
}

func setup() (*config.Config, *coordinator.Coordinator, lgr.L, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if dryRun {
		cfg.DryRun = true
	}
	if verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	profile := state.Resolve(state.DefaultStateDir(), profileName)
	if err := profile.EnsureDirs(); err != nil {
		return nil, nil, nil, fmt.Errorf("prepare state dir: %w", err)
	}

	log := buildLogger(cfg.Verbose, profile.LogPath())

	tr := &transport.SSHTransport{
		User:         cfg.Remote.User,
		Host:         cfg.Remote.Host,
		Port:         cfg.Remote.Port,
		Identity:     cfg.Remote.Identity,
		SSHTimeout:   cfg.Sync.SSHTimeout,
		RsyncTimeout: cfg.Sync.RsyncTimeout,
		BandwidthKB:  cfg.Sync.BandwidthLimitKB,
		MaxFileSize:  cfg.Sync.MaxFileSize,
		Log:          log,
	}

	co := coordinator.New(profile, cfg, tr, log)
	return cfg, co, log, nil
}

func buildLogger(verbose bool, logPath string) lgr.L {
	opts := []lgr.Option{lgr.Msec}
	if verbose {
		opts = append(opts, lgr.Debug, lgr.CallerFile, lgr.CallerFunc)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		// Logging to a file is best-effort; fall back to stderr only.
		return lgr.New(opts...)
	}
	opts = append(opts, lgr.Out(f), lgr.Err(f))
	return lgr.New(opts...)
}

func runSync(ctx context.Context) error {
	_, co, log, err := setup()
	if err != nil {
		return err
	}

	signalCtx, exitCode := coordinator.WithSignalCancel(ctx)
	report := co.Sync(signalCtx)

	if code := exitCode(); code != coordinator.ExitOK {
		// A signal interrupted the run; the Coordinator still released the
		// lock and left the last known-good manifest in place.
		os.Exit(code)
	}

	if report.Err != nil {
		if errors.Is(report.Err, lock.ErrLocked) {
			return fmt.Errorf("profile %q is already syncing: %w", profileName, report.Err)
		}
		return report.Err
	}

	log.Logf("INFO sync complete: pushed=%d pulled=%d deleted_local=%d deleted_remote=%d conflicts=%d skipped=%d errors=%d (%s)",
		report.Pushed, report.Pulled, report.DeletedLocal, report.DeletedRemote,
		report.Conflicts, report.Skipped, report.Errors, report.Duration)

	fmt.Printf("pushed=%d pulled=%d deleted_local=%d deleted_remote=%d conflicts=%d skipped=%d errors=%d\n",
		report.Pushed, report.Pulled, report.DeletedLocal, report.DeletedRemote,
		report.Conflicts, report.Skipped, report.Errors)
	return nil
}

func runStatus(ctx context.Context) error {
	_, co, _, err := setup()
	if err != nil {
		return err
	}

	actions, err := co.Status(ctx)
	if err != nil {
		return err
	}

	if len(actions) == 0 {
		fmt.Println("up to date")
		return nil
	}
	for _, a := range actions {
		size := a.Local.Size
		if a.HasRemote && !a.HasLocal {
			size = a.Remote.Size
		}
		fmt.Printf("%s\t%s\t%s\n", a.Op, a.Path, humanize.Bytes(uint64(size)))
	}
	return nil
}

func runResetState() error {
	_, co, _, err := setup()
	if err != nil {
		return err
	}
	return co.ResetState()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "default", "sync profile name")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/rsync-sync/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "show what would be done without doing it")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt, fail instead")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(syncCmd, statusCmd, resetStateCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
