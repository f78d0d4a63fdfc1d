package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize/english"
	"github.com/openmined/syftlink/internal/link"
	"github.com/openmined/syftlink/internal/storage"
	"github.com/openmined/syftlink/internal/sync"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type syncFlags struct {
	prefer string
	dryRun bool
}

func newSyncCmd(c *cli) *cobra.Command {
	var flags syncFlags

	syncCmd := &cobra.Command{
		Use:   "sync [name]",
		Short: "Sync a link in both directions",
		Long: `Sync a link in both directions.

Without a name, the link whose local folder contains the working directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.registry()
			if err != nil {
				return err
			}

			var l *link.Link
			if len(args) == 1 {
				l, err = reg.Load(args[0])
			} else {
				var cwd string
				cwd, err = os.Getwd()
				if err == nil {
					l, err = reg.ResolveDir(cwd)
				}
			}
			if err != nil {
				return err
			}

			return c.runSync(cmd, l, flags)
		},
	}

	syncCmd.Flags().SortFlags = false
	syncCmd.Flags().IntP("thread-count", "t", sync.DefaultThreadCount, "number of concurrent transfers")
	syncCmd.Flags().IntP("batch-size", "b", 0, "max paths per transfer call, 0 for no batching")
	syncCmd.Flags().StringVar(&flags.prefer, "prefer", "", "resolve conflicts without asking: local, remote or newer")
	syncCmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "print the plan without changing anything")
	_ = c.v.BindPFlag("thread_count", syncCmd.Flags().Lookup("thread-count"))
	_ = c.v.BindPFlag("batch_size", syncCmd.Flags().Lookup("batch-size"))

	return syncCmd
}

// runSync runs one sync of l while holding the link's lock.
func (c *cli) runSync(cmd *cobra.Command, l *link.Link, flags syncFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	unlock, err := l.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	interactive := c.interactive()
	resolver, err := resolverFor(flags.prefer, interactive)
	if err != nil {
		return err
	}

	local, err := storage.OpenStore(ctx, l.Local, c.cfg.S3)
	if err != nil {
		return fmt.Errorf("%w: local: %w", sync.ErrConfig, err)
	}
	remote, err := storage.OpenStore(ctx, l.Remote, c.cfg.S3)
	if err != nil {
		return fmt.Errorf("%w: remote: %w", sync.ErrConfig, err)
	}

	ignore, err := sync.LoadIgnoreList(l.Local)
	if err != nil {
		return err
	}

	opts := sync.Options{
		ThreadCount: c.cfg.ThreadCount,
		BatchSize:   c.cfg.BatchSize,
		DryRun:      flags.dryRun,
		Resolver:    resolver,
		Ignore:      ignore,
	}

	var view *progressView
	restoreConsole := func() {}
	if interactive && !flags.dryRun {
		opts.BeforeExecute = func(plan []sync.Action) {
			restoreConsole = c.quietConsole()
			view = startProgressView(cmd.ErrOrStderr(), plan)
		}
		opts.Progress = sync.ProgressFunc(func(ev sync.ProgressEvent) {
			if view != nil {
				view.Emit(ev)
			}
		})
	} else {
		opts.Progress = logProgress{}
	}

	engine, err := sync.NewEngine(storage.NewPair(local, remote), l.LedgerPath(), opts)
	if err != nil {
		return err
	}

	slog.Info("sync", "link", l.Name, "local", l.Local, "remote", l.Remote)
	res, err := engine.Run(ctx)
	if view != nil {
		view.Stop()
	}
	restoreConsole()

	if res != nil && res.Plan != nil {
		if flags.dryRun {
			if err := printPlan(cmd.OutOrStdout(), res.Plan); err != nil {
				return err
			}
		}
		printSummary(cmd.OutOrStdout(), l, res, flags.dryRun)
	}
	return err
}

func resolverFor(prefer string, interactive bool) (sync.ConflictResolver, error) {
	switch strings.ToLower(prefer) {
	case "":
		if interactive {
			return promptResolver(), nil
		}
		return nil, nil
	case "newer":
		return sync.NewerResolver{}, nil
	}

	disposition, err := sync.ParseDisposition(strings.ToLower(prefer))
	if err != nil {
		return nil, err
	}
	return sync.FixedResolver(disposition), nil
}

func printPlan(w io.Writer, plan []sync.Action) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plan); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return enc.Close()
}

func printSummary(w io.Writer, l *link.Link, res *sync.Result, dryRun bool) {
	counts := res.Counts
	uploads := counts[sync.ActionCopyLocalToRemote]
	downloads := counts[sync.ActionCopyRemoteToLocal]
	deletes := counts[sync.ActionDeleteLocal] + counts[sync.ActionDeleteRemote]

	verb := "Synced"
	if dryRun {
		verb = "Would sync"
	}

	fmt.Fprintf(w, "%s %s: %s up, %s down, %s, %s unchanged\n",
		verb,
		cyan.Render(l.Name),
		green.Render(english.Plural(uploads, "file", "")),
		green.Render(english.Plural(downloads, "file", "")),
		yellow.Render(english.Plural(deletes, "deletion", "")),
		gray.Render(fmt.Sprint(counts[sync.ActionNothing])),
	)

	var execErr *sync.ExecutionError
	if errors.As(res.ExecErr, &execErr) {
		for _, msg := range execErr.Messages() {
			fmt.Fprintf(w, "  %s %s\n", red.Render("failed"), msg)
		}
	}
}

// logProgress reports finished paths through slog when no terminal is attached.
type logProgress struct{}

func (logProgress) Emit(ev sync.ProgressEvent) {
	if ev.Phase != sync.PhaseFinish {
		return
	}
	if ev.Err != nil {
		slog.Warn("failed", "kind", ev.Kind, "path", ev.Path, "error", ev.Err)
		return
	}
	slog.Info("done", "kind", ev.Kind, "path", ev.Path)
}
