package notify

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// DefaultOperator is the messaging recipient used when none is configured.
const DefaultOperator = "919347856661"

// componentUnescape undoes the QueryEscape choices that differ from a
// browser's encodeURIComponent, so kiosk and server build identical links.
var componentUnescape = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// DeepLink builds a wa.me link that opens a chat with recipient prefilled
// with text.
func DeepLink(recipient, text string) string {
	return "https://wa.me/" + recipient + "?text=" + componentUnescape.Replace(url.QueryEscape(text))
}

// Opener hands a deep link to the host environment. There is no delivery
// confirmation; an error only means the link could not be handed over.
type Opener interface {
	Open(ctx context.Context, link string) error
}

// LogOpener records links. The kiosk opens them from the capture result.
type LogOpener struct {
	log *zap.Logger
}

func NewLogOpener(log *zap.Logger) *LogOpener {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogOpener{log: log}
}

func (o *LogOpener) Open(ctx context.Context, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.log.Info("messaging link", zap.String("url", link))
	return nil
}
