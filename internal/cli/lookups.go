package cli

import (
	"context"

	"github.com/spf13/cobra"

	"biztrack/internal/api"
	"biztrack/internal/core"
)

func clientsCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "clients",
		Aliases: []string{"client"},
		Short:   "List and save clients",
	}
	cmd.AddCommand(
		lookupListCmd(s, "clients", func(b *api.Backend) *api.Resource[core.Client] { return b.Clients }, clientColumns),
		clientSaveCmd(s),
	)
	return cmd
}

func categoriesCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category"},
		Short:   "List and save receipt categories",
	}
	cmd.AddCommand(
		lookupListCmd(s, "categories", func(b *api.Backend) *api.Resource[core.Category] { return b.Categories }, categoryColumns),
		categorySaveCmd(s),
	)
	return cmd
}

func vehiclesCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vehicles",
		Aliases: []string{"vehicle"},
		Short:   "List and save vehicles",
	}
	cmd.AddCommand(
		lookupListCmd(s, "vehicles", func(b *api.Backend) *api.Resource[core.Vehicle] { return b.Vehicles }, vehicleColumns),
		vehicleSaveCmd(s),
	)
	return cmd
}

func lookupListCmd[T api.Record](s *state, noun string, pick func(*api.Backend) *api.Resource[T], cols []column[T]) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List " + noun,
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
			records, err := pick(app.Backend).List(ctx, sess.UserID, sess.Token)
			if err != nil {
				return err
			}
			return renderList(cmd.OutOrStdout(), s.output, noun, records, cols)
		},
	}
}

func findLookup[T api.Record](ctx context.Context, app *App, r *api.Resource[T], id string) (T, error) {
	var zero T
	sess, err := app.Sessions.Current(ctx)
	if err != nil {
		return zero, err
	}
	return r.Find(ctx, sess.UserID, sess.Token, id)
}

func clientSaveCmd(s *state) *cobra.Command {
	var id, name, email, office, mobile, address1, address2, city, province, postal, country string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create a client, or update one with --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var c core.Client
			if id != "" {
				if c, err = findLookup(ctx, app, app.Backend.Clients, id); err != nil {
					return err
				}
			}
			e := newEdits(cmd)
			e.str("name", &c.Name, name)
			e.optional("email", &c.EmailAddress, email)
			e.optional("office-phone", &c.OfficePhone, office)
			e.optional("mobile-phone", &c.MobilePhone, mobile)
			e.optional("address1", &c.AddressLine1, address1)
			e.optional("address2", &c.AddressLine2, address2)
			e.optional("city", &c.City, city)
			e.optional("state", &c.StateOrProvince, province)
			e.optional("postal-code", &c.PostalCode, postal)
			e.optional("country", &c.Country, country)
			if e.err != nil {
				return e.err
			}

			saved, err := app.Ledger().SaveClient(ctx, c)
			if err != nil {
				return err
			}
			return printSaved(cmd, s.output, "client", saved.ID, saved, saved.Name)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Client to update")
	cmd.Flags().StringVar(&name, "name", "", "Name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&office, "office-phone", "", "Office phone")
	cmd.Flags().StringVar(&mobile, "mobile-phone", "", "Mobile phone")
	cmd.Flags().StringVar(&address1, "address1", "", "Address line 1")
	cmd.Flags().StringVar(&address2, "address2", "", "Address line 2")
	cmd.Flags().StringVar(&city, "city", "", "City")
	cmd.Flags().StringVar(&province, "state", "", "State or province")
	cmd.Flags().StringVar(&postal, "postal-code", "", "Postal code")
	cmd.Flags().StringVar(&country, "country", "", "Country")
	return cmd
}

func categorySaveCmd(s *state) *cobra.Command {
	var id, name, icon string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create a category, or update one with --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var c core.Category
			if id != "" {
				if c, err = findLookup(ctx, app, app.Backend.Categories, id); err != nil {
					return err
				}
			}
			e := newEdits(cmd)
			e.str("name", &c.Name, name)
			e.str("icon", &c.Icon, icon)
			if e.err != nil {
				return e.err
			}

			saved, err := app.Ledger().SaveCategory(ctx, c)
			if err != nil {
				return err
			}
			return printSaved(cmd, s.output, "category", saved.ID, saved, saved.Name)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Category to update")
	cmd.Flags().StringVar(&name, "name", "", "Name")
	cmd.Flags().StringVar(&icon, "icon", "", "Icon URL or glyph")
	return cmd
}

func vehicleSaveCmd(s *state) *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create a vehicle, or update one with --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var v core.Vehicle
			if id != "" {
				if v, err = findLookup(ctx, app, app.Backend.Vehicles, id); err != nil {
					return err
				}
			}
			e := newEdits(cmd)
			e.str("name", &v.Name, name)
			if e.err != nil {
				return e.err
			}

			saved, err := app.Ledger().SaveVehicle(ctx, v)
			if err != nil {
				return err
			}
			return printSaved(cmd, s.output, "vehicle", saved.ID, saved, saved.Name)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Vehicle to update")
	cmd.Flags().StringVar(&name, "name", "", "Name")
	return cmd
}
