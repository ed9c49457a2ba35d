package notifier

import "context"

// TextNotifier pushes a short text to an operator channel.
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}
