package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joescharf/campusreport/internal/output"
)

var userPassword string

// passwordInput is where passwords are read from when --password is not
// given; replaceable in tests.
var passwordInput io.Reader = os.Stdin

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage facility staff accounts",
	Long:  "Create, list, and remove the accounts allowed to override issue statuses.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an account",
	Long: `Create an account. Without --password, the password is prompted for
(with confirmation) on a terminal, or read as one line from piped stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userAddRun(args[0])
	},
}

var userRemoveCmd = &cobra.Command{
	Use:     "remove <username>",
	Aliases: []string{"rm"},
	Short:   "Remove an account and end its sessions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userRemoveRun(args[0])
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "Password (prompted when omitted)")
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userRemoveCmd)
	rootCmd.AddCommand(userCmd)
}

func userListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	users, err := s.ListUsers(context.Background())
	if err != nil {
		return err
	}

	if len(users) == 0 {
		ui.Info("No accounts. Use 'campusreport user add <username>' to create one.")
		return nil
	}

	table := ui.Table([]string{"Username", "Created"})
	for _, u := range users {
		_ = table.Append([]string{
			output.Cyan(u.Username),
			u.CreatedAt.Format("2006-01-02"),
		})
	}
	_ = table.Render()
	return nil
}

func userAddRun(username string) error {
	if dryRun {
		ui.DryRunMsg("Would create account: %s", username)
		return nil
	}

	password := userPassword
	if password == "" {
		var err error
		password, err = readPassword()
		if err != nil {
			return err
		}
	}

	svc, err := getAuthService()
	if err != nil {
		return err
	}
	if _, err := svc.CreateUser(context.Background(), username, password); err != nil {
		return describeError(err)
	}

	ui.Success("Created account: %s", output.Cyan(username))
	return nil
}

func userRemoveRun(username string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove account: %s", username)
		return nil
	}

	if err := s.DeleteUser(ctx, u.ID); err != nil {
		return fmt.Errorf("remove account: %w", err)
	}

	ui.Success("Removed account: %s", username)
	return nil
}

// readPassword prompts twice on a terminal, or reads one line when input is
// piped.
func readPassword() (string, error) {
	if f, ok := passwordInput.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		fmt.Fprint(ui.ErrOut, "Password: ")
		first, err := term.ReadPassword(fd)
		fmt.Fprintln(ui.ErrOut)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		fmt.Fprint(ui.ErrOut, "Confirm password: ")
		second, err := term.ReadPassword(fd)
		fmt.Fprintln(ui.ErrOut)
		if err != nil {
			return "", fmt.Errorf("reading password confirmation: %w", err)
		}
		if string(first) != string(second) {
			return "", fmt.Errorf("passwords do not match")
		}
		return string(first), nil
	}

	line, err := bufio.NewReader(passwordInput).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}
	return password, nil
}
