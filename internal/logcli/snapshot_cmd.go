package logcli

import (
	"github.com/oremus-labs/ol-logstream/internal/events"
	"github.com/oremus-labs/ol-logstream/internal/format"
	"github.com/spf13/cobra"
)

func newSnapshotCmd(root *rootOptions) *cobra.Command {
	var labels string
	cmd := &cobra.Command{
		Use:   "snapshot <job-id>",
		Short: "Print the current history of a job log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			renderer, err := root.renderer()
			if err != nil {
				return err
			}
			registry, err := loadRegistry(labels)
			if err != nil {
				return err
			}
			body, err := client.Snapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			history, err := events.DecodeHistory(body)
			if err != nil {
				return err
			}

			formatter := format.New(registry, nil)
			index := 0
			for _, raw := range history {
				entry, ok := formatter.Format(raw, 0)
				if ok {
					if err := renderer.RenderEntry(cmd.OutOrStdout(), entry, index); err != nil {
						return err
					}
					index++
				}
				if raw.IsTerminal() {
					break
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&labels, "labels", "", "YAML/JSON file of label templates per event kind")
	return cmd
}
