package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"brokeradmin/core"
	"brokeradmin/service"

	"github.com/briandowns/spinner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newAdminsCmd creates the 'admins' command group.
func newAdminsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "admins",
		Aliases: []string{"admin"},
		Short:   "Manage SYS_ADMIN accounts",
	}
	cmd.AddCommand(newAdminsListCmd())
	cmd.AddCommand(newAdminsGetCmd())
	cmd.AddCommand(newAdminsCreateCmd())
	cmd.AddCommand(newAdminsDeleteCmd())
	return cmd
}

func newAdminsListCmd() *cobra.Command {
	var (
		pageSize   int
		page       int
		textSearch string
		sortBy     string
		sortDir    string
		all        bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List administrators",
		Long:    "List one page of administrators, or every administrator with --all.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			link := core.PageLink{PageSize: pageSize, Page: page, TextSearch: textSearch}
			if sortBy != "" {
				link.SortOrder = &core.SortOrder{Property: sortBy, Direction: strings.ToUpper(sortDir)}
			}
			if err := link.Validate(); err != nil {
				return describeError("invalid page", err)
			}

			var (
				users   []*core.User
				total   int64
				hasNext bool
			)
			if all {
				users, err = core.DrainAll(ctx, pageSize, func(ctx context.Context, l core.PageLink) (core.PageData[*core.User], error) {
					l.TextSearch = link.TextSearch
					l.SortOrder = link.SortOrder
					return app.Admins.ListAdmins(ctx, l)
				})
				if err != nil {
					return describeError("failed to list admins", err)
				}
				total = int64(len(users))
			} else {
				data, err := app.Admins.ListAdmins(ctx, link)
				if err != nil {
					return describeError("failed to list admins", err)
				}
				users, total, hasNext = data.Data, data.TotalElements, data.HasNext
			}

			if ok, err := render(cmd.OutOrStdout(), users); ok {
				return err
			}
			renderAdminsTable(cmd.OutOrStdout(), users, total, hasNext)
			return nil
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Page size")
	cmd.Flags().IntVar(&page, "page", 0, "Zero-based page number")
	cmd.Flags().StringVar(&textSearch, "search", "", "Email prefix filter")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Sort property (email, firstName, lastName, createdTime)")
	cmd.Flags().StringVar(&sortDir, "direction", core.SortASC, "Sort direction (ASC or DESC)")
	cmd.Flags().BoolVar(&all, "all", false, "Fetch every page")

	return cmd
}

func newAdminsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show one administrator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := service.ParseUserID(args[0])
			if err != nil {
				return describeError("invalid user id", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			user, err := app.Admins.GetAdmin(ctx, id)
			if err != nil {
				return describeError("failed to get admin", err)
			}

			if ok, err := render(cmd.OutOrStdout(), user); ok {
				return err
			}
			renderAdminDetails(cmd.OutOrStdout(), user)
			return nil
		},
	}
}

func newAdminsCreateCmd() *cobra.Command {
	var draft core.AdminDraft

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator",
		Long:  "Create a SYS_ADMIN account. Missing email or password is prompted for.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			if draft.Email == "" {
				draft.Email = promptString(reader, cmd.ErrOrStderr(), "Email", true, "")
			}
			if draft.Password == "" {
				draft.Password = promptString(reader, cmd.ErrOrStderr(), "Password", true, "")
			}
			if draft.Email == "" || draft.Password == "" {
				return fmt.Errorf("email and password are required (use --email and --password)")
			}

			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			user, err := app.Admins.CreateAdmin(ctx, draft)
			if err != nil {
				return describeError("failed to create admin", err)
			}

			if ok, err := render(cmd.OutOrStdout(), user); ok {
				return err
			}
			if !quiet {
				successColor.Fprintf(cmd.OutOrStdout(), "✓ Admin created: %s (ID: %s)\n", user.Email, user.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&draft.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&draft.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&draft.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&draft.Password, "password", "", "Initial password")

	return cmd
}

func newAdminsDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <user-id>",
		Aliases: []string{"rm", "remove"},
		Short:   "Delete an administrator",
		Long:    "Delete an administrator that owns no connection descriptors. Accounts with live sessions are deleted through the API.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := service.ParseUserID(args[0])
			if err != nil {
				return describeError("invalid user id", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			user, err := app.Admins.GetAdmin(ctx, id)
			if err != nil {
				return describeError("failed to get admin", err)
			}

			if !force {
				reader := bufio.NewReader(cmd.InOrStdin())
				prompt := fmt.Sprintf("Are you sure you want to delete admin '%s' (ID: %s)?", user.Email, id)
				if !promptYesNo(reader, cmd.ErrOrStderr(), prompt, false) {
					fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled")
					return nil
				}
			}

			var s *spinner.Spinner
			if !outputJSON && !outputYAML && !quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
				s.Suffix = " Disconnecting sessions..."
				s.Start()
			}

			// The command line acts on behalf of no account, so self deletion cannot apply.
			summary, err := app.Admins.DeleteAdmin(ctx, id, uuid.Nil)
			if s != nil {
				s.Stop()
			}
			if err != nil {
				return describeError("failed to delete admin", err)
			}

			if ok, err := render(cmd.OutOrStdout(), summary); ok {
				return err
			}
			if !quiet {
				renderDeleteSummary(cmd.OutOrStdout(), user, summary)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}
