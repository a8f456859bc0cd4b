package session

import "log/slog"

// Notifier surfaces human-readable status messages to the user.
type Notifier interface {
	Info(msg string)
	Success(msg string)
	Error(msg string)
}

// LogNotifier writes notifications to a slog logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

func (n LogNotifier) Info(msg string)    { n.logger().Info(msg, "kind", "info") }
func (n LogNotifier) Success(msg string) { n.logger().Info(msg, "kind", "success") }
func (n LogNotifier) Error(msg string)   { n.logger().Error(msg, "kind", "error") }
