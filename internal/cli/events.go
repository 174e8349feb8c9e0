package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"biztrack/internal/events"
)

func eventsCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read record change events from the broker",
	}
	cmd.AddCommand(eventsTailCmd(s))
	return cmd
}

func eventsTailCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Print record changes as they arrive until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			consumer, err := app.Consumer()
			if err != nil {
				return err
			}
			defer consumer.Close()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			err = consumer.Consume(cmd.Context(), func(msg events.RecordChanged) error {
				if s.output == OutputJSON {
					return enc.Encode(msg)
				}
				_, err := fmt.Fprintln(out, formatEvent(msg))
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func formatEvent(msg events.RecordChanged) string {
	line := fmt.Sprintf("%s %s %s %s", msg.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), msg.Operation, msg.Entity, msg.ID)
	if len(msg.Changes) > 0 {
		line += " (" + strings.Join(msg.Changes, ", ") + ")"
	}
	return line
}
