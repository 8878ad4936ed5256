// Package notify delivers user and operator notifications.
//
// Notifier is the collaborator used by the subscription engine and the
// background jobs. TelegramNotifier posts through the Bot API;
// LogNotifier writes to the log for local runs. Formatter renders the
// message texts with golang.org/x/text number formatting.
package notify
