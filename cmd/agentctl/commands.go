package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/launchpad/internal/agent"
	"github.com/yourusername/launchpad/internal/jobs"
	"github.com/yourusername/launchpad/internal/poller"
)

// Version はビルド時に設定されます。
var Version = "0.1.0"

type rootOptions struct {
	server  string
	timeout time.Duration
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Create agents and follow their creation progress",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("LAUNCHPAD_SERVER_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "API server base URL (env LAUNCHPAD_SERVER_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log poll errors to stderr")

	root.AddCommand(newCreateCmd(opts), newStatusCmd(opts), newWatchCmd(opts))
	return root
}

func (o *rootOptions) client() *poller.Client {
	return poller.NewClient(o.server, o.timeout)
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelError
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		file     string
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create -f agent.yaml",
		Short: "Start creating an agent from a YAML definition",
		Long: `Start creating an agent from a YAML definition.

Examples:
  agentctl create -f support-bot.yaml
  agentctl create -f support-bot.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := agent.LoadFile(file)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			jobID, err := opts.client().Create(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s started\n", jobID)
			if !watch {
				return nil
			}
			return runWatch(cmd, opts, jobID, interval)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "agent definition (YAML)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "follow progress until the job finishes")
	cmd.Flags().DurationVar(&interval, "interval", poller.DefaultInterval, "poll interval when watching")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <jobId>",
		Short: "Show the current stage of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.client().Status(cmd.Context(), args[0])
			if errors.Is(err, jobs.ErrNotFound) {
				st, err = &jobs.Status{JobID: args[0], Stage: jobs.StageStoringConfig}, nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), poller.DefaultTheme.Render(*st))
			return nil
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <jobId>",
		Short: "Poll a job until it completes or fails",
		Long: `Poll a job until it completes or fails.

Ctrl+C stops watching; the job keeps running on the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args[0], interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", poller.DefaultInterval, "poll interval")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *rootOptions, jobID string, interval time.Duration) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := poller.New(opts.client(), interval, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	final, err := p.Watch(ctx, jobID, func(st jobs.Status) {
		fmt.Fprintln(out, poller.DefaultTheme.Render(st))
	})
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(out, "Stopped watching. Job %s continues on the server.\n", jobID)
		return nil
	}
	if err != nil {
		return err
	}
	if final.Stage == jobs.StageFailed {
		return fmt.Errorf("job %s failed: %s", jobID, final.Error)
	}
	return nil
}
