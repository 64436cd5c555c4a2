package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/aimatrx/matrx/internal/credentials"
)

func newLoginCommand() *cobra.Command {
	loginCmd := &cobra.Command{
		Use:           "login",
		Short:         "Store the cloud session used for settings sync and heartbeat",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runLogin,
	}
	loginCmd.Flags().String("token", "", "Cloud access token (prompted when omitted)")
	loginCmd.Flags().String("user-id", "", "Cloud user ID")
	loginCmd.Flags().String("email", "", "Optional account email, stored for display only")
	loginCmd.Flags().Bool("show", false, "Display the stored session instead of logging in")
	return loginCmd
}

func newLogoutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "logout",
		Short:         "Remove the stored cloud session",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runLogout,
	}
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	show, _ := cmd.Flags().GetBool("show")
	if show {
		for _, name := range []string{"token", "user-id", "email"} {
			if cmd.Flags().Changed(name) {
				return out.Error("--show cannot be combined with other login flags", nil)
			}
		}
		return showCredentials(out)
	}

	token, _ := cmd.Flags().GetString("token")
	token = strings.TrimSpace(token)
	userID, _ := cmd.Flags().GetString("user-id")
	userID = strings.TrimSpace(userID)
	email, _ := cmd.Flags().GetString("email")
	email = strings.TrimSpace(email)

	if token == "" {
		var err error
		token, err = promptToken()
		if err != nil {
			return out.Error("Failed to read token", err)
		}
	}
	if token == "" {
		return out.Error("A token is required (--token, or enter one at the prompt)", nil)
	}
	if userID == "" {
		var err error
		userID, err = promptLine("User ID: ")
		if err != nil {
			return out.Error("Failed to read user ID", err)
		}
	}
	if userID == "" {
		return out.Error("A user ID is required (--user-id, or enter one at the prompt)", nil)
	}

	creds := &credentials.Credentials{
		Token:  token,
		UserID: userID,
		Email:  email,
	}
	if err := credentials.Save(creds); err != nil {
		return out.Error("Failed to store the cloud session", err)
	}

	info := map[string]any{
		"user_id": userID,
	}
	if path, err := credentials.Path(); err == nil {
		info["path"] = path
	}

	// Register with a running engine right away; a stopped engine picks the
	// session up on the next connection sequence.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if c, err := connectEngine(ctx); err == nil {
		defer c.Close()
		if result, err := c.ConfigureCloud(ctx, token, userID); err == nil {
			info["engine_configured"] = result.Configured
		} else {
			fmt.Fprintf(os.Stderr, "Warning: session stored but engine registration failed: %v\n", err)
		}
	}

	return out.Success("Cloud session stored", info)
}

func runLogout(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	if err := credentials.Clear(); err != nil {
		return out.Error("Failed to clear the cloud session", err)
	}
	return out.Success("Cloud session cleared", map[string]any{"cleared": true})
}

func showCredentials(out *OutputFormatter) error {
	creds, err := credentials.Load()
	if err != nil {
		return out.Error("Failed to read the stored session", err)
	}

	info := map[string]any{
		"configured": creds != nil,
	}
	if path, pathErr := credentials.Path(); pathErr == nil {
		info["path"] = path
	}
	if creds != nil {
		info["user_id"] = creds.UserID
		info["token_configured"] = strings.TrimSpace(creds.Token) != ""
		if creds.Email != "" {
			info["email"] = creds.Email
		}
		if !creds.UpdatedAt.IsZero() {
			info["updated_at"] = creds.UpdatedAt.Format(time.RFC3339)
		}
	}
	return out.Print(info)
}

// promptToken reads the token without echoing when stdin is a terminal.
func promptToken() (string, error) {
	if !terminal.IsTerminal(0) {
		return "", fmt.Errorf("stdin is not a terminal; pass --token")
	}
	fmt.Print("Access token: ")
	raw, err := terminal.ReadPassword(0)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
