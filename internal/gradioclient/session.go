package gradioclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-contrib/sse"
	"go.uber.org/zap"

	"github.com/example/derma-check/internal/logging"
)

// maxStreamSize bounds how much of an event stream is buffered.
const maxStreamSize = 16 << 20

type session struct {
	client  *Client
	root    string
	prefix  string
	version string
}

type predictResult struct {
	Data     json.RawMessage `json:"data"`
	Endpoint string          `json:"endpoint"`
	EventID  string          `json:"event_id"`
}

func (s *session) apiURL(path string) string {
	return s.root + s.prefix + path
}

// ViewAPI fetches the app's declared endpoints and parameters.
func (s *session) ViewAPI(ctx context.Context) (json.RawMessage, error) {
	req, err := s.client.newRequest(ctx, http.MethodGet, s.apiURL("/info"), nil)
	if err != nil {
		return nil, logging.NewOperationError("gradio.view_api", "", err)
	}
	body, err := s.client.do(req)
	if err != nil {
		return nil, logging.NewOperationError("gradio.view_api", "", err)
	}
	if !json.Valid(body) {
		return nil, logging.NewOperationError("gradio.view_api", "", errors.New("api info is not valid JSON"))
	}
	return json.RawMessage(body), nil
}

// Predict submits data to route and blocks until the event stream reports
// completion. The returned JSON has the outputs under "data".
func (s *session) Predict(ctx context.Context, route string, data ...any) (json.RawMessage, error) {
	if data == nil {
		data = []any{}
	}
	callURL := s.apiURL("/call" + route)

	eventID, err := s.submit(ctx, callURL, data)
	if err != nil {
		wrapped := logging.NewOperationError("gradio.submit", "", err)
		s.client.logger.Error("prediction submit failed", zap.Error(wrapped), zap.String("route", route))
		return nil, wrapped
	}

	output, err := s.await(ctx, callURL+"/"+eventID)
	if err != nil {
		wrapped := logging.NewOperationError("gradio.await", "", err)
		s.client.logger.Error("prediction failed", zap.Error(wrapped), zap.String("route", route), zap.String("event_id", eventID))
		return nil, wrapped
	}

	return json.Marshal(predictResult{Data: output, Endpoint: route, EventID: eventID})
}

func (s *session) submit(ctx context.Context, callURL string, data []any) (string, error) {
	body, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return "", err
	}
	req, err := s.client.newRequest(ctx, http.MethodPost, callURL, body)
	if err != nil {
		return "", err
	}
	resp, err := s.client.do(req)
	if err != nil {
		if isQueueFull(err) {
			return "", fmt.Errorf("upstream queue is full: %w", err)
		}
		return "", err
	}

	var submitted struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(resp, &submitted); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if submitted.EventID == "" {
		return "", errors.New("submit response carried no event_id")
	}
	return submitted.EventID, nil
}

// await reads the event stream for one prediction. The upstream closes the
// stream after a complete or error event; the caller's context bounds the wait.
func (s *session) await(ctx context.Context, streamURL string) (json.RawMessage, error) {
	req, err := s.client.newRequest(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := s.client.newStatusError(req, resp)
		if isQueueFull(err) {
			return nil, fmt.Errorf("upstream queue is full: %w", err)
		}
		return nil, err
	}

	stream, err := io.ReadAll(io.LimitReader(resp.Body, maxStreamSize))
	if err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	// The decoder only splits on LF.
	stream = bytes.ReplaceAll(stream, []byte("\r\n"), []byte("\n"))
	events, err := sse.Decode(bytes.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("decode event stream: %w", err)
	}
	for _, event := range events {
		if output, done, err := s.dispatch(event); done {
			return output, err
		}
	}
	return nil, errors.New("event stream closed before completion")
}

func (s *session) dispatch(event sse.Event) (json.RawMessage, bool, error) {
	payload, _ := event.Data.(string)
	switch event.Event {
	case "complete":
		if !json.Valid([]byte(payload)) {
			return nil, true, errors.New("complete event carried invalid JSON")
		}
		return json.RawMessage(payload), true, nil
	case "error":
		return nil, true, fmt.Errorf("prediction error: %s", errorMessage(payload))
	default:
		s.client.logger.Debug("event", zap.String("name", event.Event))
		return nil, false, nil
	}
}

// errorMessage unwraps a JSON string payload; null or empty becomes a generic message.
func errorMessage(payload string) string {
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == "null" {
		return "upstream reported an error"
	}
	var text string
	if err := json.Unmarshal([]byte(payload), &text); err == nil && text != "" {
		return text
	}
	return payload
}
