package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mirrorhub/mirrorhub/internal/secrets"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Store credentials in the OS keyring",
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show which credentials the keyring holds",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range secrets.Names() {
			mark := color.RedString("✗")
			if _, err := secrets.Get(name); err == nil {
				mark = color.GreenString("✓")
			}
			fmt.Printf("%s %-16s %s\n", mark, name, secrets.Describe(name))
		}
	},
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Store a credential; the value is read from the terminal without echo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := readSecret(fmt.Sprintf("%s: ", secrets.Describe(args[0])))
		if err != nil {
			return err
		}
		if err := secrets.Set(args[0], value); err != nil {
			return err
		}
		color.Green("Stored %s in the keyring.", args[0])
		return nil
	},
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a credential from the keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return secrets.Delete(args[0])
	},
}

func init() {
	secretsCmd.AddCommand(secretsListCmd)
	secretsCmd.AddCommand(secretsSetCmd)
	secretsCmd.AddCommand(secretsDeleteCmd)
	rootCmd.AddCommand(secretsCmd)
}

// readSecret reads one line, hiding input when stdin is a terminal.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Print(prompt)
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
