// Package notify delivers one-time codes and verification links to users.
//
// Delivery is best-effort: the engine calls a Notifier from a background
// worker and only logs failures. Implementations must be safe for
// concurrent use.
package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrDeliveryFailed wraps transport errors returned by notifiers.
var ErrDeliveryFailed = errors.New("notification delivery failed")

// Kind names the message template.
type Kind string

const (
	KindOTP          Kind = "otp"
	KindVerification Kind = "email_verification"
)

// Recipient identifies who a message is for.
type Recipient struct {
	UserID string
	Email  string
	Name   string
}

// Notifier sends login codes and verification tokens.
type Notifier interface {
	SendOTP(ctx context.Context, to Recipient, code string) error
	SendVerification(ctx context.Context, to Recipient, token string) error
}

// LogNotifier writes notifications to a zap logger. Secrets are logged only
// when RevealSecrets is set, which is meant for local development.
type LogNotifier struct {
	logger        *zap.Logger
	RevealSecrets bool
}

func NewLogNotifier(logger *zap.Logger, revealSecrets bool) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify"), RevealSecrets: revealSecrets}
}

func (n *LogNotifier) SendOTP(_ context.Context, to Recipient, code string) error {
	n.log(KindOTP, to, code)
	return nil
}

func (n *LogNotifier) SendVerification(_ context.Context, to Recipient, token string) error {
	n.log(KindVerification, to, token)
	return nil
}

func (n *LogNotifier) log(kind Kind, to Recipient, secret string) {
	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.String("user_id", to.UserID),
		zap.String("email", to.Email),
	}
	if n.RevealSecrets {
		fields = append(fields, zap.String("secret", secret))
	}
	n.logger.Info("notification", fields...)
}

// Message is one captured notification.
type Message struct {
	Kind   Kind
	To     Recipient
	Secret string
}

// Recorder keeps every notification in memory. Tests and the demo server
// read codes back from it.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func (r *Recorder) SendOTP(_ context.Context, to Recipient, code string) error {
	return r.record(Message{Kind: KindOTP, To: to, Secret: code})
}

func (r *Recorder) SendVerification(_ context.Context, to Recipient, token string) error {
	return r.record(Message{Kind: KindVerification, To: to, Secret: token})
}

func (r *Recorder) record(m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, m)
	return nil
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent message of kind for userID.
func (r *Recorder) Last(kind Kind, userID string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		m := r.messages[i]
		if m.Kind == kind && m.To.UserID == userID {
			return m, true
		}
	}
	return Message{}, false
}

// Count returns how many messages of kind were sent to userID.
func (r *Recorder) Count(kind Kind, userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Kind == kind && m.To.UserID == userID {
			n++
		}
	}
	return n
}

// Multi fans a notification out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) SendOTP(ctx context.Context, to Recipient, code string) error {
	var errs []error
	for _, n := range m {
		if err := n.SendOTP(ctx, to, code); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) SendVerification(ctx context.Context, to Recipient, token string) error {
	var errs []error
	for _, n := range m {
		if err := n.SendVerification(ctx, to, token); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
