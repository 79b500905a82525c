package notify

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/apperr"
	"campusattend/internal/attendance"
	"campusattend/internal/directory"
	"campusattend/internal/geofence"
)

type sentMail struct {
	to, subject, body string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMail
}

func (s *recordingSender) Send(_ context.Context, to, subject, body string) error {
	if _, err := ValidateAddress(to); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMail{to, subject, body})
	return nil
}

type recordingOpener struct {
	mu    sync.Mutex
	links []string
	err   error
}

func (o *recordingOpener) Open(_ context.Context, link string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links = append(o.links, link)
	return o.err
}

var record = attendance.Record{
	ID:        "s1-2026-10-14",
	UserID:    "s1",
	Date:      "2026-10-14",
	Status:    attendance.StatusPresent,
	Timestamp: "09:30:05",
	Location:  &attendance.Location{Status: geofence.OnCampus, Coordinates: "18.4550, 79.5217"},
}

func student() directory.User {
	return directory.User{
		ID:                  "s1",
		PIN:                 "23210-CM-001",
		Name:                "Asha Kumari",
		Role:                directory.RoleStudent,
		Email:               "asha@example.edu",
		EmailVerified:       true,
		ParentEmail:         "parent@example.com",
		ParentEmailVerified: true,
	}
}

func channels(outcomes []Outcome) []string {
	var out []string
	for _, o := range outcomes {
		out = append(out, string(o.Channel))
	}
	sort.Strings(out)
	return out
}

func TestDispatchAllChannels(t *testing.T) {
	mail, opener := &recordingSender{}, &recordingOpener{}
	d := NewDispatcher(mail, opener, "", nil)

	outcomes := d.Dispatch(context.Background(), record, student()).Wait()
	assert.Equal(t, []string{"messaging", "parent_email", "student_email"}, channels(outcomes))
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
	}

	require.Len(t, mail.sent, 2)
	subjects := []string{mail.sent[0].subject, mail.sent[1].subject}
	assert.ElementsMatch(t, []string{"Attendance Marked for Asha Kumari", "Your Attendance has been Marked"}, subjects)
	assert.Contains(t, mail.sent[0].body, "attendance for Asha Kumari (PIN: 23210-CM-001) has been marked as PRESENT")
	assert.Contains(t, mail.sent[0].body, "Location Status: On-Campus (18.4550, 79.5217)")

	require.Len(t, opener.links, 1)
	assert.True(t, strings.HasPrefix(opener.links[0], "https://wa.me/919347856661?text="))
}

func TestDispatchUnverifiedParent(t *testing.T) {
	mail, opener := &recordingSender{}, &recordingOpener{}
	d := NewDispatcher(mail, opener, "", nil)

	user := student()
	user.ParentEmailVerified = false

	outcomes := d.Dispatch(context.Background(), record, user).Wait()
	assert.Equal(t, []string{"messaging", "student_email"}, channels(outcomes))
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "asha@example.edu", mail.sent[0].to)
	assert.Len(t, opener.links, 1)
}

func TestDispatchNoEmailStillMessages(t *testing.T) {
	mail, opener := &recordingSender{}, &recordingOpener{}
	d := NewDispatcher(mail, opener, "15550001111", nil)

	user := student()
	user.Email, user.ParentEmail = "", ""

	del := d.Dispatch(context.Background(), record, user)
	assert.Equal(t, []string{"messaging"}, channels(del.Wait()))
	assert.Empty(t, mail.sent)
	assert.True(t, strings.HasPrefix(del.Link, "https://wa.me/15550001111?text="))
}

func TestChannelFailuresAreIsolated(t *testing.T) {
	mail := &recordingSender{}
	opener := &recordingOpener{err: errors.New("no browser")}
	d := NewDispatcher(mail, opener, "", nil)

	user := student()
	user.ParentEmail = "not-an-address"

	outcomes := d.Dispatch(context.Background(), record, user).Wait()
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		switch o.Channel {
		case ChannelParentEmail:
			assert.ErrorIs(t, o.Err, ErrInvalidAddress)
			assert.Equal(t, apperr.KindNotification, apperr.KindOf(o.Err))
		case ChannelStudentEmail:
			assert.NoError(t, o.Err)
		case ChannelMessaging:
			assert.Error(t, o.Err)
		}
	}
	require.Len(t, mail.sent, 1)
	d.Wait()
}

func TestMessageTextIsEncoded(t *testing.T) {
	link := DeepLink("919347856661", MessageText(record, student()))
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "wa.me", u.Host)
	assert.Equal(t, "Attendance for Asha Kumari (PIN: 23210-CM-001) has been marked PRESENT at 09:30:05.",
		u.Query().Get("text"))
	assert.Equal(t,
		"https://wa.me/919347856661?text=Attendance%20for%20Asha%20Kumari%20(PIN%3A%2023210-CM-001)%20has%20been%20marked%20PRESENT%20at%2009%3A30%3A05.",
		link)
}

func TestBodyWithoutCoordinates(t *testing.T) {
	rec := record
	rec.Location = &attendance.Location{Status: geofence.OffCampus}
	assert.Contains(t, Body(rec, student()), "Location Status: Off-Campus (no coordinates)")
}

func TestValidateAddress(t *testing.T) {
	addr, err := ValidateAddress("Asha <asha@example.edu>")
	require.NoError(t, err)
	assert.Equal(t, "asha@example.edu", addr)

	for _, bad := range []string{"", "asha", "asha@", "@example.edu"} {
		_, err := ValidateAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}

func TestConsoleSender(t *testing.T) {
	s := NewConsoleSender(nil)
	assert.NoError(t, s.Send(context.Background(), "asha@example.edu", "s", "b"))
	assert.ErrorIs(t, s.Send(context.Background(), "nope", "s", "b"), ErrInvalidAddress)
}

func TestSMTPComposeEncodesHeaders(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.edu"})
	msg := s.compose("asha@example.edu", "Présence", "line1\nline2")
	assert.Contains(t, msg, "To: asha@example.edu\r\n")
	assert.Contains(t, msg, "Subject: =?UTF-8?b?")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline1\r\nline2"))
}

func TestSendersRejectInvalidAddressBeforeNetwork(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, NewSMTPSender(SMTPConfig{}).Send(ctx, "bad", "s", "b"), ErrInvalidAddress)
	assert.ErrorIs(t, NewSendGridSender("key", "Mira", "noreply@example.edu").Send(ctx, "bad", "s", "b"), ErrInvalidAddress)
}
