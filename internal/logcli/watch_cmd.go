package logcli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/oremus-labs/ol-logstream/internal/format"
	"github.com/oremus-labs/ol-logstream/internal/logstream"
	"github.com/oremus-labs/ol-logstream/internal/render"
	"github.com/spf13/cobra"
)

type watchOptions struct {
	transport       string
	interval        time.Duration
	labels          string
	timeout         time.Duration
	skipMalformed   bool
	maxPollFailures int
}

func (w *watchOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.transport, "transport", logstream.TransportPush, "Feed transport: push|pull")
	cmd.Flags().DurationVar(&w.interval, "interval", logstream.DefaultPollInterval, "Polling interval for the pull transport")
	cmd.Flags().StringVar(&w.labels, "labels", os.Getenv("EVENT_LABELS_PATH"), "YAML/JSON file of label templates per event kind")
	cmd.Flags().DurationVar(&w.timeout, "timeout", 0, "Give up after this long (0 waits until the feed ends)")
	cmd.Flags().BoolVar(&w.skipMalformed, "skip-malformed", false, "Skip unparseable pushed events instead of failing")
	cmd.Flags().IntVar(&w.maxPollFailures, "max-poll-failures", 0, "Stop polling after this many consecutive failures (0 retries forever)")
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch <job-id|url>",
		Short: "Follow a job log until it ends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			return follow(cmd, root, opts, client, args[0])
		},
	}
	opts.bind(cmd)
	return cmd
}

// follow subscribes to target (a job ID or a full feed URL) and renders
// entries to stdout until the feed ends.
func follow(cmd *cobra.Command, root *rootOptions, opts *watchOptions, client *Client, target string) error {
	renderer, err := root.renderer()
	if err != nil {
		return err
	}
	registry, err := loadRegistry(opts.labels)
	if err != nil {
		return err
	}

	locator := target
	if !strings.Contains(target, "://") {
		locator = client.FeedURL(target, opts.transport != logstream.TransportPull)
	}

	sub, err := logstream.New(logstream.Options{
		Transport:       opts.transport,
		PollInterval:    opts.interval,
		Registry:        registry,
		Header:          client.Header(),
		HTTPClient:      &http.Client{},
		SkipMalformed:   opts.skipMalformed,
		MaxPollFailures: opts.maxPollFailures,
	})
	if err != nil {
		return err
	}

	panel := render.NewPanel(cmd.OutOrStdout(), render.PanelOptions{Renderer: renderer})
	stop := sub.Watch(panel)
	defer stop()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	sub.Subscribe(ctx, locator)
	defer sub.Unsubscribe()

	st, _ := sub.Wait(ctx)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("timed out after %s with %d entries", opts.timeout, len(st.Entries))
	case ctx.Err() != nil:
		// Interrupted by the user.
		return nil
	case st.Err != nil:
		return fmt.Errorf("feed ended: %w", st.Err)
	}
	return panel.Err()
}

func loadRegistry(path string) (*format.Registry, error) {
	if path == "" {
		return format.DefaultRegistry(), nil
	}
	overrides, err := format.LoadLabels(path)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	return format.NewRegistry(overrides), nil
}
