package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/geofence"
)

func newAgent(t *testing.T, geo http.HandlerFunc) (*AgentClient, *int32) {
	t.Helper()
	var released int32
	mux := http.NewServeMux()
	mux.HandleFunc("/camera/acquire", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"stream_id": "cam-1"})
	})
	mux.HandleFunc("/camera/release", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&released, 1)
		w.WriteHeader(http.StatusNoContent)
	})
	if geo != nil {
		mux.HandleFunc("/geolocation", geo)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewAgentClient(srv.URL, false), &released
}

func TestAgentCameraLifecycle(t *testing.T) {
	agent, released := newAgent(t, nil)

	stream, err := agent.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cam-1", stream.ID())

	stream.Stop()
	stream.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(released))
}

func TestAgentLocate(t *testing.T) {
	agent, _ := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]float64{"latitude": 18.455, "longitude": 79.5217})
	})
	pos, err := agent.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, geofence.Coordinate{Latitude: 18.455, Longitude: 79.5217}, pos)
}

func TestAgentLocateFailures(t *testing.T) {
	tests := []struct {
		name string
		code int
		want LocationFailure
	}{
		{name: "denied", code: 1, want: LocationPermissionDenied},
		{name: "unavailable", code: 2, want: LocationUnavailable},
		{name: "timeout", code: 3, want: LocationTimeout},
		{name: "unknown code", code: 9, want: LocationUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent, _ := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{"error_code": tt.code, "message": "nope"})
			})
			_, err := agent.Locate(context.Background())
			var le *LocationError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.want, le.Failure)
		})
	}
}

func TestAgentLocateContextDeadline(t *testing.T) {
	agent, _ := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := agent.Locate(ctx)
	assert.Equal(t, LocationTimeout.Warning(), WarningFor(err))
}

func TestWarningsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, f := range []LocationFailure{LocationPermissionDenied, LocationUnavailable, LocationTimeout, 0} {
		seen[f.Warning()] = true
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, LocationFailure(0).Warning(), WarningFor(errors.New("other")))
}

func TestSkipMode(t *testing.T) {
	agent := NewAgentClient("http://unused.invalid", true)
	agent.SkipPosition = geofence.Coordinate{Latitude: 1, Longitude: 2}

	stream, err := agent.Acquire(context.Background())
	require.NoError(t, err)
	stream.Stop()

	pos, err := agent.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, agent.SkipPosition, pos)
	assert.NoError(t, agent.Health(context.Background()))
}

func TestAgentErrorsKeepCause(t *testing.T) {
	agent, _ := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := agent.Locate(context.Background())
	var le *LocationError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, LocationUnavailable, le.Failure)
	var syntax *json.SyntaxError
	assert.True(t, errors.As(err, &syntax))

	err = agent.Health(context.Background())
	assert.ErrorContains(t, err, "device agent unhealthy: 404")
}
