package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"biztrack/internal/core"
	"biztrack/internal/log"
)

func loginCmd(s *state) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				return usageErrorf("--username is required")
			}
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				if password, err = readPassword(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr())
			}

			ctx := cmd.Context()
			res, err := app.Backend.Users.Login(ctx, username, password)
			if err != nil {
				return err
			}
			sess, err := app.Sessions.Begin(ctx, res, username)
			if err != nil {
				return err
			}
			app.Logger.InfoContext(ctx, "Signed in", log.FieldUserID, sess.UserID)
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s account)\n", sess.Username, sess.AccountType)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when empty)")
	return cmd
}

func logoutCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			if err := app.Sessions.End(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

type whoami struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	Name        string `json:"name,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	AccountType string `json:"accountType"`
	ShowsAds    bool   `json:"showsAds"`
}

func whoamiCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := app.Sessions.Current(ctx)
			if err != nil {
				return err
			}
			out := whoami{
				UserID:      sess.UserID,
				Username:    sess.Username,
				AccountType: sess.AccountType.String(),
				ShowsAds:    sess.AccountType.ShowsAds(),
			}
			// Profile details are best effort; the session alone answers the question.
			if u, err := app.Backend.Users.Get(ctx, sess.UserID); err == nil {
				out.Name = u.Name
				out.CompanyName = u.CompanyName
			} else {
				app.Logger.WarnContext(ctx, "Profile unavailable", log.FieldError, err.Error())
			}

			if s.output == OutputJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintf(tw, "User:\t%s (%s)\n", out.Username, out.UserID)
			if out.Name != "" {
				fmt.Fprintf(tw, "Name:\t%s\n", out.Name)
			}
			if out.CompanyName != "" {
				fmt.Fprintf(tw, "Company:\t%s\n", out.CompanyName)
			}
			fmt.Fprintf(tw, "Account:\t%s\n", out.AccountType)
			return tw.Flush()
		},
	}
}

func signupCmd(s *state) *cobra.Command {
	var user core.User
	var password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				if password, err = readPassword(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			user.Password = password
			user.AccountType = core.AccountFree
			if err := user.Validate(); err != nil {
				return usageErrorf("%v", err)
			}
			created, err := app.Backend.Users.SignUp(cmd.Context(), user)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created account %s (%s). Run 'biztrack login -u %s' to sign in.\n",
				created.Username, created.ID, created.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user.Username, "username", "u", "", "Username")
	cmd.Flags().StringVar(&user.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&user.CompanyName, "company", "", "Company name")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when empty)")
	return cmd
}

// readPassword reads without echo from a terminal and falls back to one
// line of input otherwise.
func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return strings.TrimRight(scanner.Text(), "\r"), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.New("no password given")
}
