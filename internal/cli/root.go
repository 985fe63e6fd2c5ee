package cli

import (
	"log/slog"
	"os"

	"github.com/me/meetup/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking MEETUP_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("MEETUP_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the meetup CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "meetup",
		Short: "meetup: recurring group meetups",
		Long:  "meetup lists events, answers invitations, and manages opt-outs on a meetup server.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), flagLogFormat, cmd.ErrOrStderr())
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "meetup server URL (or MEETUP_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newEventsCmd(),
		newShowCmd(),
		newAcceptCmd(),
		newDeclineCmd(),
		newHomeCmd(),
		newOptOutCmd(),
		newOptInCmd(),
		newTickCmd(),
	)

	return root
}
