package cmd

import (
	"context"
	"fmt"

	"github.com/dcmarble/stonesite/internal/config"
	"github.com/dcmarble/stonesite/internal/contact"
	"github.com/spf13/cobra"
)

var (
	sendName    string
	sendEmail   string
	sendMessage string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one contact message through EmailJS",
	Long: `Send a single contact-form message using the configured EmailJS
credentials. Useful for checking credentials before deploying.

Examples:
  stonesite send --name "Don" --email don@example.com --message "Test"`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendName, "name", "", "Sender name")
	sendCmd.Flags().StringVar(&sendEmail, "email", "", "Sender email")
	sendCmd.Flags().StringVar(&sendMessage, "message", "", "Message body")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	snap, err := submitMessage(cmd.Context(), a.newController(), contact.FormState{
		Name:    sendName,
		Email:   sendEmail,
		Message: sendMessage,
	})
	if err != nil {
		return err
	}

	switch snap.Status {
	case contact.StatusSuccess:
		fmt.Fprintf(cmd.OutOrStdout(), "Message sent to %s\n", contact.DestinationAddress)
		return nil
	default:
		return fmt.Errorf("message was not sent (status %s), see log for details", snap.Status)
	}
}

// submitMessage submits form once through the controller.
func submitMessage(ctx context.Context, c *contact.Controller, form contact.FormState) (contact.Snapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.SubmitForm(ctx, form)
}
