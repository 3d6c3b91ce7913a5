package cmd

import (
	"context"
	"fmt"
	"strings"

	"brokeradmin/core"
	"brokeradmin/service"

	"github.com/spf13/cobra"
)

// newSettingsCmd creates the 'settings' command group.
func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write global settings records",
		Long: `Read and write global settings records.

Saving the mail record reloads the mail transport; saving the mqttAuthorization record
notifies subscribers. Secret fields are never printed.`,
	}
	cmd.AddCommand(newSettingsGetCmd())
	cmd.AddCommand(newSettingsSetCmd())
	cmd.AddCommand(newSettingsTestMailCmd())
	return cmd
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show a settings record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			settings, err := app.Settings.GetAdminSettings(ctx, args[0])
			if err != nil {
				return describeError("failed to get settings", err)
			}

			if ok, err := render(cmd.OutOrStdout(), settings); ok {
				return err
			}
			renderSettings(cmd.OutOrStdout(), settings)
			return nil
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Replace a settings record",
		Long:  "Replace a settings record with a JSON or YAML payload read from --file, or stdin with --file -.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, file)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			saved, err := app.Settings.SaveAdminSettings(ctx, &core.AdminSettings{Key: args[0], JSONValue: payload})
			if err != nil {
				return describeError("failed to save settings", err)
			}

			if ok, err := render(cmd.OutOrStdout(), saved); ok {
				return err
			}
			if !quiet {
				successColor.Fprintf(cmd.OutOrStdout(), "✓ Settings saved: %s\n", saved.Key)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Payload file (JSON or YAML), - for stdin")

	return cmd
}

func newSettingsTestMailCmd() *cobra.Command {
	var (
		file string
		to   string
	)

	cmd := &cobra.Command{
		Use:   "test-mail",
		Short: "Send a test message with candidate mail settings",
		Long: `Send a test message to --to using the mail payload in --file. A payload without a
password uses the stored one. Nothing is saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(to) == "" {
				return fmt.Errorf("recipient is required (use --to)")
			}
			payload, err := readPayload(cmd, file)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			candidate := &core.AdminSettings{Key: core.MailSettingsKey, JSONValue: payload}
			if err := app.MailProbe.SendTestMail(ctx, candidate, to); err != nil {
				return describeError("test mail failed", err)
			}

			if !quiet {
				successColor.Fprintf(cmd.OutOrStdout(), "✓ Test mail sent to %s\n", to)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "Mail payload file (JSON or YAML), - for stdin")
	cmd.Flags().StringVar(&to, "to", "", "Recipient address")

	return cmd
}

// newSecurityCmd creates the 'security' command group.
func newSecurityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "security",
		Short: "Read and write the authentication policy",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the security settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			settings, err := app.Security.GetSecuritySettings(ctx)
			if err != nil {
				return describeError("failed to get security settings", err)
			}

			if ok, err := render(cmd.OutOrStdout(), settings); ok {
				return err
			}
			renderSecuritySettings(cmd.OutOrStdout(), settings)
			return nil
		},
	})

	var file string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the security settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, file)
			if err != nil {
				return err
			}
			var settings core.SecuritySettings
			if err := payload.Decode(&settings); err != nil {
				return fmt.Errorf("invalid security settings: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			saved, err := app.Security.SaveSecuritySettings(ctx, settings)
			if err != nil {
				return describeError("failed to save security settings", err)
			}

			if ok, err := render(cmd.OutOrStdout(), saved); ok {
				return err
			}
			if !quiet {
				successColor.Fprintln(cmd.OutOrStdout(), "✓ Security settings saved")
			}
			return nil
		},
	}
	setCmd.Flags().StringVarP(&file, "file", "f", "-", "Payload file (JSON or YAML), - for stdin")
	cmd.AddCommand(setCmd)

	return cmd
}

// newTokenCmd creates the 'token' command group.
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue tokens on behalf of users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "issue <user-id>",
		Short: "Issue an access and refresh token for a user",
		Long:  "Issue a token pair for a user. Refused when user token access is disabled.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			app, cleanup, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := service.ParseUserID(args[0])
			if err != nil {
				return describeError("invalid user id", err)
			}

			pair, err := app.TokenIssuer.IssueToken(ctx, id)
			if err != nil {
				return describeError("failed to issue token", err)
			}

			if ok, err := render(cmd.OutOrStdout(), pair); ok {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token:        %s\n", pair.Token)
			fmt.Fprintf(cmd.OutOrStdout(), "refreshToken: %s\n", pair.RefreshToken)
			return nil
		},
	})

	return cmd
}
