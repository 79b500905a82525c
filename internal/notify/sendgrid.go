package notify

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendGridSender sends mail through the SendGrid v3 API.
type SendGridSender struct {
	key  string
	from *sgmail.Email
	host string
	api  func(rest.Request) (*rest.Response, error)
}

func NewSendGridSender(key, fromName, fromEmail string) *SendGridSender {
	return &SendGridSender{
		key:  key,
		from: sgmail.NewEmail(fromName, fromEmail),
		host: sendgridHost,
		api:  sendgrid.API,
	}
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, body string) error {
	rcpt, err := ValidateAddress(to)
	if err != nil {
		return err
	}
	if s.key == "" {
		return errors.New("sendgrid not configured")
	}

	p := sgmail.NewPersonalization()
	p.Subject = subject
	p.AddTos(sgmail.NewEmail("", rcpt))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", body))

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		status  int
		resBody string
		sendErr error
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		res, err := s.api(req)
		if err != nil {
			sendErr = err
			return
		}
		status, resBody = res.StatusCode, res.Body
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "sendgrid request")
	}
	if sendErr != nil {
		return errors.Wrap(sendErr, "sendgrid request")
	}
	if status >= http.StatusBadRequest {
		return errors.Errorf("sendgrid: status %d: %s", status, resBody)
	}
	return nil
}
