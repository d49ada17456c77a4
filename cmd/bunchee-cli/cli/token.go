package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Show or remove the saved API token",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the saved token, for use as BUNCHEE_TOKEN",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := LoadToken()
			if err != nil {
				return err
			}
			if data.Expired(opts.now()) {
				return fmt.Errorf("token for %s expired at %s (run: bunchee-cli login)",
					data.Username, data.ExpiresAt.Local().Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(cmd.OutOrStdout(), data.Token)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", dimText(fmt.Sprintf("%s on %s", data.Username, data.Server)))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:     "clear",
		Aliases: []string{"logout"},
		Short:   "Delete the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteToken(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Token removed\n", successText("✓"))
			return nil
		},
	}

	cmd.AddCommand(showCmd, clearCmd)
	return cmd
}
