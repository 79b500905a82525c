package notify

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrInvalidAddress is returned for a recipient that is not a valid
// RFC 5322 address.
var ErrInvalidAddress = errors.New("notify: invalid email address")

// EmailSender delivers one plain text message.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ValidateAddress parses to and returns the bare address.
func ValidateAddress(to string) (string, error) {
	if to == "" {
		return "", ErrInvalidAddress
	}
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidAddress, "%q", to)
	}
	return addr.Address, nil
}

// ConsoleSender logs messages instead of sending them.
type ConsoleSender struct {
	log *zap.Logger
}

func NewConsoleSender(log *zap.Logger) *ConsoleSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConsoleSender{log: log}
}

func (s *ConsoleSender) Send(ctx context.Context, to, subject, body string) error {
	addr, err := ValidateAddress(to)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("email",
		zap.String("to", addr),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
