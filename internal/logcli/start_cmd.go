package logcli

import (
	"fmt"
	"time"

	"github.com/oremus-labs/ol-logstream/internal/jobs"
	"github.com/spf13/cobra"
)

func newStartCmd(root *rootOptions) *cobra.Command {
	var (
		steps    int
		interval time.Duration
		noWatch  bool
	)
	watch := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a demo job and follow its log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			var resp struct {
				ID string `json:"log_job_id"`
			}
			req := jobs.Request{Steps: steps, StepIntervalMs: int(interval / time.Millisecond)}
			if err := client.PostJSON(cmd.Context(), "/start", req, &resp); err != nil {
				return err
			}
			if resp.ID == "" {
				return fmt.Errorf("server returned no job id")
			}
			if noWatch {
				if root.outputFormat == "json" {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.ID)
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Job %s started.\n", resp.ID)
			return follow(cmd, root, watch, client, resp.ID)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "Number of steps (server default when 0)")
	cmd.Flags().DurationVar(&interval, "step-interval", 0, "Delay between steps (server default when 0)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Print the job id and exit")
	watch.bind(cmd)
	return cmd
}
