// Package notify defines the capability interfaces the portal core
// uses to surface messages and errors. Concrete rendering (toasts,
// banners) lives outside the core; the defaults here log instead.
package notify

import "go.uber.org/zap"

type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notifier shows a dismissible, non-blocking message to the learner.
type Notifier interface {
	Notify(message string, kind Kind)
}

// Reporter records an error with a short human context string.
type Reporter interface {
	Report(err error, context string)
}

// LogNotifier writes notifications to the logger.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Notify(message string, kind Kind) {
	switch kind {
	case KindWarning:
		n.Log.Warn(message, zap.String("kind", string(kind)))
	case KindError:
		n.Log.Error(message, zap.String("kind", string(kind)))
	default:
		n.Log.Info(message, zap.String("kind", string(kind)))
	}
}

// LogReporter writes reported errors to the logger.
type LogReporter struct {
	Log *zap.Logger
}

func (r LogReporter) Report(err error, context string) {
	r.Log.Error(context, zap.Error(err))
}

// Discard drops everything. Useful in tests.
type Discard struct{}

func (Discard) Notify(string, Kind)  {}
func (Discard) Report(error, string) {}
