package cli

import (
	"fmt"

	"github.com/me/meetup/pkg/model"
	"github.com/spf13/cobra"
)

func newTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler pass on the server now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res model.TickResult
			if err := client.postInto(cmd.Context(), "/api/v1/admin/tick", nil, &res); err != nil {
				return fmt.Errorf("tick: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tick complete in %s\n", res.Duration)
			return nil
		},
	}
}
