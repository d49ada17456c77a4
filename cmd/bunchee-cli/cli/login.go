package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd(opts *options) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save an API token",
		Long: `Exchange a username and password for an API token. The token is
stored in ~/.bunchee/token with 0600 permissions and used by the other
commands when --token and BUNCHEE_TOKEN are unset.

Example:
  bunchee-cli login --server https://bunchee.example.com --username alice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readPassword(cmd.ErrOrStderr(), cmd.InOrStdin(), "Password: ")
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = p
			}
			if password == "" {
				return fmt.Errorf("password cannot be empty")
			}

			c := opts.client()
			fmt.Fprintf(cmd.ErrOrStderr(), "Authenticating with %s...\n", c.BaseURL)
			grant, err := c.Login(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := SaveToken(TokenData{
				Server:    c.BaseURL,
				Username:  username,
				Token:     grant.Token,
				ExpiresAt: grant.ExpiresAt,
			}); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Logged in as %s\n", successText("✓"), username)
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", dimText("Token expires "+grant.ExpiresAt.Local().Format("2006-01-02 15:04")))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when empty)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// readPassword prompts for a password without echo when in is a terminal,
// and reads one line otherwise.
func readPassword(prompt io.Writer, in io.Reader, label string) (string, error) {
	fmt.Fprint(prompt, label)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
