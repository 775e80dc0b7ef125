// cmd/shadow/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"shadow/internal/change"
	"shadow/internal/config"
	"shadow/internal/diff"
	"shadow/internal/engine"
	"shadow/internal/logging"
	"shadow/internal/watch"
	"shadow/internal/workspace"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	engineType string
	logLevel   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "shadow",
	Short: "Shadow is a file-backed micro version control engine",
	Long: `Shadow snapshots files, reports line-level changes against the last snapshot,
lets each change be approved or disapproved, and records checkpoints that can
restore files later.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (JSON or YAML); defaults to <workspace>/.shadow/config.yaml")
	rootCmd.PersistentFlags().StringVarP(&engineType, "type", "t", engine.TypeMain, "Engine instance (main, working)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Human-readable development logging")

	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create the shadow storage directory in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			cfg, err := loadConfig(dir)
			if err != nil {
				return err
			}
			root := cfg.EngineRoot(dir, engineType)
			if err := os.MkdirAll(root, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", root, err)
			}

			fmt.Println("Initialized shadow storage in", root)
			return nil
		},
	}

	var snapshotCmd = &cobra.Command{
		Use:   "snapshot [paths...]",
		Short: "Take snapshots of files or directories",
		Long:  `Records the current content of each path as its new baseline. Directories are walked recursively.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			for _, path := range args {
				abs := resolve(e, path)
				if info, err := os.Stat(abs); err == nil && info.IsDir() {
					count, err := e.SnapshotTree(abs)
					if err != nil {
						return fmt.Errorf("snapshotting %s: %w", path, err)
					}
					fmt.Printf("Snapshotted %d files under %s\n", count, path)
					continue
				}

				snap, err := e.TakeSnapshot(abs)
				if err != nil {
					return fmt.Errorf("snapshotting %s: %w", path, err)
				}
				fmt.Printf("%s  %s\n", snap.Hash[:12], path)
			}
			return nil
		},
	}

	var trackedCmd = &cobra.Command{
		Use:   "tracked",
		Short: "List tracked files",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			for _, path := range e.GetTrackedFiles() {
				fmt.Println(path)
			}
			return nil
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff [paths...]",
		Short: "Detect and show changes against the last snapshot",
		Long:  `Runs change detection for each path (all tracked files when none are given) and records the result as pending changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			paths := args
			if len(paths) == 0 {
				paths = e.GetTrackedFiles()
			}

			for _, path := range paths {
				changes, err := e.DetectChanges(resolve(e, path))
				if err != nil {
					return fmt.Errorf("detecting changes in %s: %w", path, err)
				}
				if len(changes) == 0 {
					continue
				}
				printColoredDiff(diff.Format(path, changes))
			}
			return nil
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show recorded pending changes and their review state",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			clean := true
			for _, path := range e.GetTrackedFiles() {
				pending, err := e.PendingChanges(path)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					continue
				}
				clean = false
				fmt.Println(path)
				for _, c := range pending {
					fmt.Printf("\t#%d %-12s lines %d-%d  ", c.ID, c.Type, c.StartLine, c.EndLine)
					approvalColor(c.Approved).Println(c.Approved)
				}
			}
			if clean {
				fmt.Println("No pending changes")
			}
			return nil
		},
	}

	var tempCmd = &cobra.Command{
		Use:   "temp [path]",
		Short: "Write a file's snapshot to a scratch file and print its location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			tempPath, err := e.CreateTempSnapshotFile(resolve(e, args[0]))
			if err != nil {
				return err
			}
			fmt.Println(tempPath)
			return nil
		},
	}

	approveCmd := reviewCommand("approve", "Approve pending changes", engineReview{
		one: (*engine.Engine).ApproveChange,
		all: (*engine.Engine).ApproveAllChanges,
	})
	disapproveCmd := reviewCommand("disapprove", "Disapprove pending changes", engineReview{
		one: (*engine.Engine).DisapproveChange,
		all: (*engine.Engine).DisapproveAllChanges,
	})

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-run change detection whenever a tracked file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			cfg, err := loadConfig(e.Workspace())
			if err != nil {
				return err
			}

			w, err := watch.New(e.Workspace(), e, cfg.Debounce(), func(r watch.Result) {
				if r.Err != nil {
					color.Red("%s: %v", r.Path, r.Err)
					return
				}
				if len(r.Changes) == 0 {
					color.Green("%s: clean", r.Path)
					return
				}
				printColoredDiff(diff.Format(r.Path, r.Changes))
			}, zap.L())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Watching %d tracked files in %s (Ctrl+C to stop)\n", len(e.GetTrackedFiles()), e.Workspace())
			return w.Run(ctx)
		},
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(trackedCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tempCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(disapproveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(checkpointCommand())
}

type engineReview struct {
	one func(*engine.Engine, string, int) bool
	all func(*engine.Engine, string) int
}

func reviewCommand(use, short string, review engineReview) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " [path] [ids...]",
		Short: short,
		Long:  `Marks the given change ids of a path, or every pending change with --all. Ids come from the last "shadow diff".`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if !all && len(args) < 2 {
				return fmt.Errorf("specify change ids or --all")
			}

			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			path := resolve(e, args[0])
			if all {
				fmt.Printf("%d changes marked\n", review.all(e, path))
				return nil
			}

			for _, arg := range args[1:] {
				id, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid change id %q", arg)
				}
				if !review.one(e, path, id) {
					color.Yellow("No change #%d for %s", id, args[0])
					continue
				}
				fmt.Printf("Change #%d marked\n", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolP("all", "a", false, "Mark every pending change of the path")
	return cmd
}

func checkpointCommand() *cobra.Command {
	var checkpointCmd = &cobra.Command{
		Use:   "checkpoint",
		Short: "Create, list, apply and move checkpoints",
	}

	var createCmd = &cobra.Command{
		Use:   "create [message]",
		Short: "Record a checkpoint of every tracked file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			cp, err := e.CreateCheckpoint(args[0])
			if err != nil {
				return fmt.Errorf("creating checkpoint: %w", err)
			}
			fmt.Printf("Created checkpoint %s with %d files\n", cp.ID, len(cp.Changes))
			return nil
		},
	}

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			checkpoints := e.GetCheckpoints()
			if len(checkpoints) == 0 {
				fmt.Println("No checkpoints found")
				return nil
			}

			for _, cp := range checkpoints {
				fmt.Printf("%s  %s  %d files  [%s]\n",
					cp.ID[:8],
					cp.Timestamp.Format(time.RFC3339),
					len(cp.Changes),
					cp.Message,
				)
			}
			return nil
		},
	}

	var deleteCmd = &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			id, err := resolveCheckpoint(e, args[0])
			if err != nil {
				return err
			}
			if !e.DeleteCheckpoint(id) {
				return fmt.Errorf("checkpoint %s not found", args[0])
			}
			fmt.Println("Deleted checkpoint", id)
			return nil
		},
	}

	var applyCmd = &cobra.Command{
		Use:   "apply [id]",
		Short: "Restore the files recorded in a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			id, err := resolveCheckpoint(e, args[0])
			if err != nil {
				return err
			}
			result, err := e.ApplyCheckpoint(id)
			if err != nil {
				return fmt.Errorf("applying checkpoint: %w", err)
			}

			color.Green("Restored %d files from %s", result.FilesRestored, id)
			for _, warning := range result.Warnings {
				color.Yellow("warning: %s", warning)
			}
			return nil
		},
	}

	var exportCmd = &cobra.Command{
		Use:   "export [id]",
		Short: "Write a checkpoint bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			id, err := resolveCheckpoint(e, args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = id + ".shadow.zst"
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			if err := e.ExportCheckpoint(id, f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", output, err)
			}

			fmt.Println("Exported checkpoint to", output)
			return nil
		},
	}

	var importCmd = &cobra.Command{
		Use:   "import [file]",
		Short: "Add a checkpoint from a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			cp, err := e.ImportCheckpoint(f)
			if err != nil {
				return fmt.Errorf("importing checkpoint: %w", err)
			}
			fmt.Printf("Imported checkpoint %s [%s]\n", cp.ID, cp.Message)
			return nil
		},
	}

	exportCmd.Flags().StringP("output", "o", "", "Bundle file (default <id>.shadow.zst)")

	checkpointCmd.AddCommand(createCmd)
	checkpointCmd.AddCommand(listCmd)
	checkpointCmd.AddCommand(deleteCmd)
	checkpointCmd.AddCommand(applyCmd)
	checkpointCmd.AddCommand(exportCmd)
	checkpointCmd.AddCommand(importCmd)
	return checkpointCmd
}

func loadConfig(ws string) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(ws, config.Default().Storage.Dir, "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// openEngine finds the workspace above the current directory and opens the
// selected engine instance.
func openEngine() (*engine.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}

	ws, cfg, err := findWorkspace(cwd)
	if err != nil {
		return nil, err
	}

	log, err := logging.NewLogger(cfg.LogLevel, verbose)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	root := cfg.EngineRoot(ws, engineType)
	logger := log.ForEngine(engineType, root)
	zap.ReplaceGlobals(logger)

	e, err := engine.New(ws,
		engine.WithType(engineType),
		engine.WithRoot(root),
		engine.WithConfig(cfg),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("opening engine: %w", err)
	}
	return e, nil
}

// findWorkspace walks up from dir to the workspace and loads its config.
// An explicit --config is read first so its storage.dir names the directory
// to look for; otherwise the default directory marks the workspace and holds
// config.yaml.
func findWorkspace(dir string) (string, *config.Config, error) {
	marker := config.Default().Storage.Dir
	if configPath != "" {
		cfg, err := loadConfig("")
		if err != nil {
			return "", nil, err
		}
		marker = cfg.Storage.Dir
	}

	ws, err := workspace.FindRoot(dir, marker)
	if err != nil {
		return "", nil, fmt.Errorf("not a shadow workspace (run \"shadow init\"): %w", err)
	}

	cfg, err := loadConfig(ws)
	if err != nil {
		return "", nil, err
	}
	return ws, cfg, nil
}

// resolve interprets a command-line path relative to the current directory.
func resolve(e *engine.Engine, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Join(e.Workspace(), path)
	}
	return filepath.Join(cwd, path)
}

// resolveCheckpoint accepts a full id or a unique prefix as printed by list.
func resolveCheckpoint(e *engine.Engine, ref string) (string, error) {
	var matches []string
	for _, cp := range e.GetCheckpoints() {
		if cp.ID == ref {
			return cp.ID, nil
		}
		if strings.HasPrefix(cp.ID, ref) {
			matches = append(matches, cp.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("checkpoint %s not found", ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("checkpoint prefix %s is ambiguous", ref)
	}
}

func printColoredDiff(text string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

// approvalColor picks the colour used when listing a change's review state.
func approvalColor(a change.Approval) *color.Color {
	switch a {
	case change.Approved:
		return color.New(color.FgGreen)
	case change.Disapproved:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
