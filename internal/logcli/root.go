// Package logcli implements the logtail command line client.
package logcli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oremus-labs/ol-logstream/internal/render"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

type rootOptions struct {
	cfgFile      string
	contextName  string
	overrideURL  string
	overrideTok  string
	outputFormat string
}

// Execute runs the CLI.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := NewRootCommand()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewRootCommand builds the logtail command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "logtail",
		Short: "Follow job log feeds",
		Long: `logtail follows job log feeds served by logserver, either as a live
event stream (push) or by polling the feed history (pull).`,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", defaultConfigPath(), "Path to the logtail config file")
	cmd.PersistentFlags().StringVar(&opts.contextName, "context", "", "Context name to use (overrides current)")
	cmd.PersistentFlags().StringVar(&opts.overrideURL, "server", "", "Override feed server URL")
	cmd.PersistentFlags().StringVar(&opts.overrideTok, "token", "", "Override API token")
	cmd.PersistentFlags().StringVarP(&opts.outputFormat, "output", "o", "text", "Output format: text|json")

	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newSnapshotCmd(opts))
	cmd.AddCommand(newStartCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	return cmd
}

// resolvedContext merges config state with flag overrides. Without any
// configured context the local default server is used.
func (o *rootOptions) resolvedContext() (*Context, error) {
	cfg, err := LoadConfig(o.cfgFile)
	if err != nil {
		return nil, err
	}
	name := o.contextName
	if name == "" {
		name = cfg.CurrentContext
	}
	var ctx Context
	if name != "" {
		found, ok := cfg.Contexts[name]
		if !ok {
			return nil, fmt.Errorf("context %q not found; use 'logtail config set-context'", name)
		}
		ctx = found
	}
	if o.overrideURL != "" {
		ctx.Server = o.overrideURL
	}
	if o.overrideTok != "" {
		ctx.Token = o.overrideTok
	}
	if ctx.Server == "" {
		ctx.Server = defaultServer
	}
	return &ctx, nil
}

func (o *rootOptions) client() (*Client, error) {
	ctx, err := o.resolvedContext()
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL:     ctx.Server,
		Token:       ctx.Token,
		RoutePrefix: ctx.RoutePrefix,
		Timeout:     15 * time.Second,
	}, nil
}

func (o *rootOptions) renderer() (render.Renderer, error) {
	switch strings.ToLower(o.outputFormat) {
	case "text", "":
		return render.TextRenderer{}, nil
	case "json":
		return render.JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", o.outputFormat)
	}
}

func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
