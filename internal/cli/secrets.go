package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/madhatter5501/promptflow/pullrequest"
)

// secretAliases maps short names to credential store keys.
var secretAliases = map[string]string{
	"token":       pullrequest.KeyAccessToken,
	"appPassword": pullrequest.KeyAppPassword,
}

func secretKey(name string) string {
	if key, ok := secretAliases[name]; ok {
		return key
	}
	return name
}

func newSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage stored Bitbucket credentials",
	}
	cmd.AddCommand(newSecretsSetCmd())
	cmd.AddCommand(newSecretsDeleteCmd())
	cmd.AddCommand(newSecretsListCmd())
	return cmd
}

func newSecretsSetCmd() *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set <token|appPassword|key>",
		Short: "Store a credential; the value is read from stdin unless --value is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("value") {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read secret from stdin: %w", err)
				}
				value = line
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return fmt.Errorf("secret value is empty")
			}

			a := appFrom(cmd.Context())
			database, store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			key := secretKey(args[0])
			if err := store.SetCredential(cmd.Context(), key, value); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", key)
			return nil
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "Secret value (visible in shell history)")
	return cmd
}

func newSecretsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <token|appPassword|key>",
		Short: "Delete a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			database, store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			key := secretKey(args[0])
			if err := store.DeleteCredential(cmd.Context(), key); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", key)
			return nil
		},
	}
}

func newSecretsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credential keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			database, store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			keys, err := store.CredentialKeys(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}
