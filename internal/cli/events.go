package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/me/meetup/pkg/model"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List upcoming events",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/events"
			if all {
				path += "?all=true"
			}
			var evs []*model.Event
			if err := client.getInto(cmd.Context(), path, &evs); err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(evs) == 0 {
				fmt.Fprintln(out, "No events found.")
				return nil
			}
			printEventTable(out, evs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include events whose time has passed")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <event_id>",
		Short: "Show one event with its invitations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ev model.Event
			if err := client.getInto(cmd.Context(), "/api/v1/events/"+args[0], &ev); err != nil {
				return fmt.Errorf("get event: %w", err)
			}
			printEvent(cmd.OutOrStdout(), &ev)
			return nil
		},
	}
}

func printEventTable(out io.Writer, evs []*model.Event) {
	fmt.Fprintf(out, "%-40s  %-12s  %-17s  %-9s  %s\n", "ID", "GROUP", "WHEN", "STATE", "ACCEPTED/PENDING")
	fmt.Fprintf(out, "%-40s  %-12s  %-17s  %-9s  %s\n", "--", "-----", "----", "-----", "----------------")
	for _, ev := range evs {
		fmt.Fprintf(out, "%-40s  %-12s  %-17s  %-9s  %d/%d\n",
			ev.ID, ev.GroupID, formatWhen(ev.ScheduledTime), eventState(ev), len(ev.Accepted), len(ev.Invites))
	}
}

func printEvent(out io.Writer, ev *model.Event) {
	fmt.Fprintf(out, "Event: %s\n", ev.ID)
	fmt.Fprintf(out, "  Group:    %s\n", ev.GroupID)
	fmt.Fprintf(out, "  When:     %s\n", formatWhen(ev.ScheduledTime))
	fmt.Fprintf(out, "  State:    %s\n", eventState(ev))
	fmt.Fprintf(out, "  Accepted: %s\n", joinOrNone(ev.Accepted))
	fmt.Fprintf(out, "  Declined: %s\n", joinOrNone(ev.Declined))
	if len(ev.Invites) > 0 {
		fmt.Fprintln(out, "  Pending:")
		for _, inv := range ev.Invites {
			sent := "not sent"
			if inv.InviteSentAt != nil {
				sent = "sent " + formatWhen(*inv.InviteSentAt)
			}
			fmt.Fprintf(out, "    - %s (%s)\n", inv.UserID, sent)
		}
	}
	if ev.Announced {
		fmt.Fprintf(out, "  Reservation: %s\n", ev.ReservationUser)
		fmt.Fprintf(out, "  Expenses:    %s\n", ev.ExpenseUser)
	}
}

func eventState(ev *model.Event) string {
	return strings.ToLower(ev.State(time.Now()).String())
}

func formatWhen(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04Z")
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ", ")
}
