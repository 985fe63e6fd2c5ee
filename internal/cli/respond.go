package cli

import (
	"fmt"

	"github.com/me/meetup/pkg/model"
	"github.com/spf13/cobra"
)

func newAcceptCmd() *cobra.Command {
	return newRespondCmd("accept", "accepted", "Accept a pending invitation")
}

func newDeclineCmd() *cobra.Command {
	return newRespondCmd("decline", "declined", "Decline a pending invitation")
}

func newRespondCmd(action, done, short string) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   action + " <event_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ev model.Event
			path := "/api/v1/events/" + args[0] + "/" + action
			if err := client.postInto(cmd.Context(), path, model.UserActionRequest{UserID: userID}, &ev); err != nil {
				return fmt.Errorf("%s invitation: %w", action, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s (%d accepted, %d pending)\n",
				userID, done, ev.ID, len(ev.Accepted), len(ev.Invites))
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User answering the invitation")
	cmd.MarkFlagRequired("user")
	return cmd
}
