package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"biztrack/internal/core"
	"biztrack/internal/log"
	"biztrack/internal/services"
)

func accountCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the account type and subscription",
	}
	cmd.AddCommand(accountSetTypeCmd(s), accountActivateCmd(s), accountCheckCmd(s), accountDeleteCmd(s))
	return cmd
}

func accountSetTypeCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:       "set-type free|paid",
		Short:     "Change the account type",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(core.AccountFree), string(core.AccountPaid)},
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := core.ParseAccountType(args[0])
			if err != nil {
				return usageErrorf("%v", err)
			}
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := app.Sessions.Current(ctx)
			if err != nil {
				return err
			}
			msg, err := app.Backend.Users.UpdateAccountType(ctx, sess.UserID, sess.Token, t)
			if err != nil {
				return err
			}
			if _, err := app.Sessions.SetAccountType(ctx, t); err != nil {
				return err
			}
			app.Logger.InfoContext(ctx, "Account type changed",
				log.FieldUserID, sess.UserID,
				log.FieldAccountType, t.String(),
				"message", msg)
			fmt.Fprintf(cmd.OutOrStdout(), "Account is now %s\n", t)
			return nil
		},
	}
}

func accountActivateCmd(s *state) *cobra.Command {
	var receiptFile string
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Validate an app store receipt and upgrade to paid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if receiptFile == "" {
				return usageErrorf("--receipt-file is required")
			}
			data, err := os.ReadFile(receiptFile)
			if err != nil {
				return fmt.Errorf("read receipt: %w", err)
			}
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			expiry, err := app.Subscription.Activate(cmd.Context(), data)
			if err != nil {
				return err
			}
			if expiry != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Account is now paid, subscription expires %s\n", expiry.Format(time.RFC3339))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Account is now paid")
			return nil
		},
	}
	cmd.Flags().StringVar(&receiptFile, "receipt-file", "", "Raw app store receipt")
	return cmd
}

func accountCheckCmd(s *state) *cobra.Command {
	var receiptFile string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the subscription once and downgrade the account if it lapsed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if receiptFile == "" {
				return usageErrorf("--receipt-file is required")
			}
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			active, err := receiptFileCheck(app.Subscription, receiptFile)(ctx)
			if err != nil {
				return err
			}
			t, err := app.Subscription.Sync(ctx, active)
			if err != nil {
				return err
			}
			status := "inactive"
			if active {
				status = "active"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s, account is %s\n", status, t)
			return nil
		},
	}
	cmd.Flags().StringVar(&receiptFile, "receipt-file", "", "Raw app store receipt")
	return cmd
}

// receiptFileCheck re-reads path on every check so that a renewed receipt
// is picked up without a restart.
func receiptFileCheck(sub *services.SubscriptionService, path string) services.CheckFunc {
	return func(ctx context.Context) (bool, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return false, fmt.Errorf("read receipt: %w", err)
		}
		return sub.ReceiptCheck(data)(ctx)
	}
}

func accountDeleteCmd(s *state) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the account and sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return usageErrorf("refusing to delete the account without --yes")
			}
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := app.Sessions.Current(ctx)
			if err != nil {
				return err
			}
			if _, err := app.Backend.Users.Delete(ctx, sess.UserID, sess.Token); err != nil {
				return err
			}
			if err := app.Sessions.End(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted account %s\n", sess.Username)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	return cmd
}
