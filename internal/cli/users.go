package cli

import (
	"fmt"

	"github.com/me/meetup/pkg/model"
	"github.com/spf13/cobra"
)

type optOutResult struct {
	UserID   string `json:"user_id"`
	OptedOut bool   `json:"opted_out"`
	Changed  bool   `json:"changed"`
}

func newHomeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "home <user_id>",
		Short: "Show a user's invitations and commitments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view model.HomeView
			if err := client.getInto(cmd.Context(), "/api/v1/users/"+args[0]+"/events", &view); err != nil {
				return fmt.Errorf("get home view: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User: %s\n", view.UserID)
			if view.OptedOut {
				fmt.Fprintln(out, "  Opted out of new invitations")
			}
			for _, section := range []struct {
				title string
				evs   []*model.Event
			}{
				{"Invited", view.Invited},
				{"Accepted", view.Accepted},
				{"Declined", view.Declined},
			} {
				fmt.Fprintf(out, "  %s: %d\n", section.title, len(section.evs))
				for _, ev := range section.evs {
					fmt.Fprintf(out, "    - %s  %s  %s\n", ev.ID, ev.GroupID, formatWhen(ev.ScheduledTime))
				}
			}
			return nil
		},
	}
}

func newOptOutCmd() *cobra.Command {
	return newOptCmd("opt-out", "Stop receiving new invitations")
}

func newOptInCmd() *cobra.Command {
	return newOptCmd("opt-in", "Receive new invitations again")
}

func newOptCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <user_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res optOutResult
			if err := client.postInto(cmd.Context(), "/api/v1/users/"+args[0]+"/"+action, nil, &res); err != nil {
				return fmt.Errorf("%s: %w", action, err)
			}
			status := "opted in"
			if res.OptedOut {
				status = "opted out"
			}
			if !res.Changed {
				status = "already " + status
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.UserID, status)
			return nil
		},
	}
}
