// Package email sends operator mail through Postmark, or writes it to disk
// in local runs.
//
// Both senders implement EmailSender and validate SendEmailParams before
// doing anything:
//
//	sender, err := email.New(cfg)
//	if err != nil {
//		return err
//	}
//	err = sender.SendEmail(ctx, email.TextMessage("ops@example.com", "High disk usage", body, "resource-alert"))
//
// New picks the Postmark client when both tokens are configured and a
// DevSender otherwise. The DevSender saves an HTML file and a JSON metadata
// file per message into Config.DevDir.
//
// Errors are sentinel values: ErrInvalidConfig for construction problems,
// ErrInvalidParams for bad messages and ErrFailedToSendEmail for delivery
// failures, joined with the provider error.
package email
