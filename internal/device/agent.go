package device

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"campusattend/internal/geofence"
)

// AgentClient talks to the device agent running on a kiosk, which owns
// the camera and the browser geolocation API.
type AgentClient struct {
	BaseURL string
	HTTP    *http.Client
	// Skip simulates the agent: the camera always opens and the
	// position is SkipPosition.
	Skip         bool
	SkipPosition geofence.Coordinate
}

var (
	_ Camera  = (*AgentClient)(nil)
	_ Locator = (*AgentClient)(nil)
)

// NewAgentClient creates a client with a short timeout; geolocation has
// its own deadline through the request context.
func NewAgentClient(baseURL string, skip bool) *AgentClient {
	return &AgentClient{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type agentStream struct {
	id     string
	client *AgentClient
	once   sync.Once
}

func (s *agentStream) ID() string { return s.id }

func (s *agentStream) Stop() {
	s.once.Do(func() {
		if s.client.Skip {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.client.post(ctx, "/camera/release", map[string]string{"stream_id": s.id}, nil)
	})
}

// Acquire opens the kiosk camera.
func (c *AgentClient) Acquire(ctx context.Context) (Stream, error) {
	if c.Skip {
		return &agentStream{id: uuid.NewString(), client: c}, nil
	}
	var out struct {
		StreamID string `json:"stream_id"`
	}
	if err := c.post(ctx, "/camera/acquire", map[string]int{"width": 480, "height": 480}, &out); err != nil {
		return nil, errors.Wrap(err, "camera acquire")
	}
	if out.StreamID == "" {
		return nil, errors.New("camera acquire: agent returned no stream")
	}
	return &agentStream{id: out.StreamID, client: c}, nil
}

// Locate asks the agent for the current position. Agent error codes follow
// the browser geolocation API: 1 denied, 2 unavailable, 3 timeout.
func (c *AgentClient) Locate(ctx context.Context) (geofence.Coordinate, error) {
	if c.Skip {
		return c.SkipPosition, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/geolocation", nil)
	if err != nil {
		return geofence.Coordinate{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return geofence.Coordinate{}, &LocationError{Failure: LocationTimeout, Err: ctx.Err()}
		}
		return geofence.Coordinate{}, &LocationError{Failure: LocationUnavailable, Err: err}
	}
	defer resp.Body.Close()

	var out struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		ErrorCode int      `json:"error_code"`
		Message   string   `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return geofence.Coordinate{}, &LocationError{Failure: LocationUnavailable, Err: errors.Wrap(err, "decode response")}
	}
	if out.ErrorCode != 0 || out.Latitude == nil || out.Longitude == nil {
		failure := LocationFailure(out.ErrorCode)
		if failure < LocationPermissionDenied || failure > LocationTimeout {
			failure = LocationUnavailable
		}
		return geofence.Coordinate{}, &LocationError{Failure: failure, Err: errors.New(out.Message)}
	}
	return geofence.Coordinate{Latitude: *out.Latitude, Longitude: *out.Longitude}, nil
}

// Health checks if the agent is reachable.
func (c *AgentClient) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrap(err, "device agent unavailable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("device agent unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *AgentClient) post(ctx context.Context, path string, payload, out any) error {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrap(err, "device agent request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return errors.Errorf("device agent error %s: %s", resp.Status, string(bodyBytes))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
