package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/capture"
	"campusattend/internal/device"
	"campusattend/internal/directory"
	"campusattend/internal/geofence"
	"campusattend/internal/notify"
	"campusattend/internal/stats"
)

type harness struct {
	t      *testing.T
	clock  *clockwork.FakeClock
	camera *device.SimCamera
	router *gin.Engine
	token  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 14, 9, 30, 5, 0, time.UTC))
	dir := directory.NewMemory(
		directory.User{ID: "s1", PIN: "23210-CM-001", Name: "Asha", Role: directory.RoleStudent, Email: "asha@example.edu", EmailVerified: true},
		directory.User{ID: "s2", PIN: "23210-CM-002", Name: "Ravi", Role: directory.RoleStudent},
		directory.User{ID: "f1", PIN: "FAC-01", Name: "Dr. Rao", Role: directory.RoleFaculty},
	)
	ledger := attendance.NewLedger(attendance.NewMemoryRepository(), clock, time.UTC, nil)
	camera := device.NewSimCamera()
	campus := geofence.Coordinate{Latitude: 18.4550, Longitude: 79.5217}
	reg := capture.NewRegistry(&capture.Pipeline{
		Camera:     camera,
		Locator:    &device.SimLocator{Position: campus},
		Fence:      geofence.Fence{Center: campus, RadiusKm: 0.5},
		Ledger:     ledger,
		Dispatcher: notify.NewDispatcher(notify.NewConsoleSender(nil), notify.NewLogOpener(nil), "", nil),
		Clock:      clock,
	}, dir)
	t.Cleanup(reg.Shutdown)

	srv := &Server{
		Sessions:  reg,
		Ledger:    ledger,
		Stats:     stats.NewAggregator(dir, ledger),
		Directory: dir,
		Signer:    auth.NewSigner("campusattend", "test-key", time.Hour, 24*time.Hour),
		Checks:    map[string]HealthCheck{"db": func(context.Context) bool { return true }},
	}
	h := &harness{t: t, clock: clock, camera: camera, router: NewRouter(srv, Options{})}

	var tokens auth.TokenPair
	h.do(http.MethodPost, "/v1/kiosks/register", map[string]string{"kiosk_id": "kiosk-1"}, http.StatusCreated, &tokens)
	require.NotEmpty(t, tokens.AccessToken)
	h.token = tokens.AccessToken
	return h
}

func (h *harness) do(method, path string, body any, wantCode int, out any) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	require.Equal(h.t, wantCode, w.Code, w.Body.String())
	if out != nil {
		require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), out))
	}
}

func (h *harness) waitPhase(id string, want capture.Phase) sessionView {
	h.t.Helper()
	var v sessionView
	require.Eventually(h.t, func() bool {
		h.do(http.MethodGet, "/v1/sessions/"+id, nil, http.StatusOK, &v)
		return v.Phase == want
	}, 2*time.Second, 5*time.Millisecond)
	return v
}

func TestCaptureOverHTTP(t *testing.T) {
	h := newHarness(t)

	var v sessionView
	h.do(http.MethodPost, "/v1/sessions", nil, http.StatusCreated, &v)
	id := v.ID
	assert.Equal(t, capture.PhaseIdle, v.Phase)

	h.do(http.MethodPut, "/v1/sessions/"+id+"/identifier",
		map[string]string{"year_prefix": "23210", "branch": "cm", "roll": "00"}, http.StatusOK, &v)
	assert.Nil(t, v.Student)

	h.do(http.MethodPut, "/v1/sessions/"+id+"/identifier",
		map[string]string{"year_prefix": "23210", "branch": "cm", "roll": "001"}, http.StatusOK, &v)
	require.NotNil(t, v.Student)
	assert.Equal(t, "Asha", v.Student.Name)

	h.do(http.MethodPost, "/v1/sessions/"+id+"/start", nil, http.StatusAccepted, &v)
	assert.Equal(t, capture.PhaseAligning, v.Phase)

	h.clock.Advance(capture.DefaultAlignDelay)
	h.waitPhase(id, capture.PhaseLiveness)
	h.clock.Advance(capture.DefaultLivenessDelay)
	v = h.waitPhase(id, capture.PhaseResult)

	require.NotNil(t, v.Result)
	assert.Equal(t, "s1-2026-10-14", v.Result.Record.ID)
	assert.Equal(t, geofence.OnCampus, v.Result.Record.Location.Status)
	assert.Equal(t, 0, h.camera.Open())

	var hist struct {
		History []attendance.Record `json:"history"`
		Summary attendance.Summary  `json:"summary"`
	}
	h.do(http.MethodGet, "/v1/attendance/users/s1", nil, http.StatusOK, &hist)
	require.Len(t, hist.History, 1)
	assert.Equal(t, 100, hist.Summary.OverallPercentage)

	var day struct {
		Records []attendance.Record `json:"records"`
	}
	h.do(http.MethodGet, "/v1/attendance/dates/2026-10-14", nil, http.StatusOK, &day)
	assert.Len(t, day.Records, 1)

	var d stats.Daily
	h.do(http.MethodGet, "/v1/stats/daily", nil, http.StatusOK, &d)
	assert.Equal(t, stats.Daily{Date: "2026-10-14", TotalStudents: 2, PresentCount: 1, AbsentCount: 1, PresentPercentage: 50}, d)

	h.do(http.MethodPost, "/v1/sessions/"+id+"/reset", nil, http.StatusOK, &v)
	assert.Nil(t, v.Student)
	h.do(http.MethodDelete, "/v1/sessions/"+id, nil, http.StatusNoContent, nil)
	h.do(http.MethodGet, "/v1/sessions/"+id, nil, http.StatusNotFound, nil)
}

func TestStartErrors(t *testing.T) {
	h := newHarness(t)
	var v sessionView
	h.do(http.MethodPost, "/v1/sessions", nil, http.StatusCreated, &v)
	id := v.ID

	var body struct {
		Kind string `json:"kind"`
	}
	h.do(http.MethodPost, "/v1/sessions/"+id+"/start", nil, http.StatusBadRequest, &body)
	assert.Equal(t, "invalid_argument", body.Kind)

	h.do(http.MethodPut, "/v1/sessions/"+id+"/identifier",
		map[string]string{"year_prefix": "23210", "branch": "CM", "roll": "002"}, http.StatusOK, &v)
	h.camera.SetErr(assert.AnError)
	h.do(http.MethodPost, "/v1/sessions/"+id+"/start", nil, http.StatusFailedDependency, &body)
	assert.Equal(t, "device", body.Kind)

	h.do(http.MethodGet, "/v1/sessions/"+id, nil, http.StatusOK, &v)
	assert.Equal(t, capture.PhaseError, v.Phase)
	assert.Equal(t, "device", string(v.ErrorKind))

	h.camera.SetErr(nil)
	h.do(http.MethodPost, "/v1/sessions/"+id+"/start", nil, http.StatusAccepted, &v)
	h.do(http.MethodPost, "/v1/sessions/"+id+"/start", nil, http.StatusConflict, &body)
	h.do(http.MethodPost, "/v1/sessions/"+id+"/cancel", nil, http.StatusOK, &v)
	assert.Equal(t, capture.PhaseIdle, v.Phase)
	assert.Equal(t, 0, h.camera.Open())
}

func TestSessionsAreScopedToKiosk(t *testing.T) {
	h := newHarness(t)
	var v sessionView
	h.do(http.MethodPost, "/v1/sessions", nil, http.StatusCreated, &v)

	var tokens auth.TokenPair
	h.do(http.MethodPost, "/v1/kiosks/register", map[string]string{"kiosk_id": "kiosk-2"}, http.StatusCreated, &tokens)
	h.token = tokens.AccessToken
	h.do(http.MethodGet, "/v1/sessions/"+v.ID, nil, http.StatusNotFound, nil)

	var refreshed auth.TokenPair
	h.do(http.MethodPost, "/v1/kiosks/refresh", map[string]string{"refresh_token": tokens.RefreshToken}, http.StatusOK, &refreshed)
	assert.NotEmpty(t, refreshed.AccessToken)
}

func TestAuthAndValidation(t *testing.T) {
	h := newHarness(t)

	h.do(http.MethodGet, "/v1/attendance/dates/14-10-2026", nil, http.StatusBadRequest, nil)
	h.do(http.MethodGet, "/v1/attendance/users/ghost", nil, http.StatusNotFound, nil)
	h.do(http.MethodPost, "/v1/kiosks/register", map[string]string{}, http.StatusBadRequest, nil)

	h.token = ""
	h.do(http.MethodGet, "/v1/stats/daily", nil, http.StatusUnauthorized, nil)

	var health map[string]any
	h.do(http.MethodGet, "/healthz", nil, http.StatusOK, &health)
	assert.Equal(t, true, health["db"])
}
