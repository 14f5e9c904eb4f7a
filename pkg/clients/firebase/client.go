package firebase

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrStreamClosed is returned when the server ends an event stream on its own.
var ErrStreamClosed = errors.New("firebase stream closed by server")

// Config holds the Realtime Database endpoint and the token appended as the
// auth query parameter.
type Config struct {
	DatabaseURL string
	AuthToken   string
	Timeout     time.Duration
}

// Event is one server-sent event from a streaming read.
type Event struct {
	Name string
	Data []byte
}

// StreamPayload is the data of put and patch events.
type StreamPayload struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// Client exposes the Realtime Database REST operations used by replication.
type Client interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, payload []byte) error
	Stream(ctx context.Context, path string, onEvent func(Event)) error
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient   *resty.Client
	streamClient *resty.Client
	authToken    string
}

// NewClient builds a Realtime Database client.
func NewClient(cfg Config) *APIClient {
	base := strings.TrimSuffix(cfg.DatabaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	// streams stay open indefinitely, so no client timeout here
	streamClient := resty.New().
		SetBaseURL(base).
		SetHeader("Accept", "text/event-stream")

	return &APIClient{
		httpClient:   httpClient,
		streamClient: streamClient,
		authToken:    cfg.AuthToken,
	}
}

type apiError struct {
	Error string `json:"error"`
}

func resource(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "/.json"
	}
	return "/" + path + ".json"
}

func (c *APIClient) request(ctx context.Context, client *resty.Client) *resty.Request {
	req := client.R().SetContext(ctx)
	if c.authToken != "" {
		req.SetQueryParam("auth", c.authToken)
	}
	return req
}

func checkResponse(op, path string, resp *resty.Response) error {
	if resp.StatusCode() < http.StatusBadRequest {
		return nil
	}
	message := strings.TrimSpace(string(resp.Body()))
	var apiErr apiError
	if err := json.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.Error != "" {
		message = apiErr.Error
	}
	return fmt.Errorf("firebase %s %s: code=%d, message=%s", op, path, resp.StatusCode(), message)
}

// Get reads the JSON value at path. An empty node reads as "null".
func (c *APIClient) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.request(ctx, c.httpClient).Get(resource(path))
	if err != nil {
		return nil, fmt.Errorf("firebase get %s: %w", path, err)
	}
	if err := checkResponse("get", path, resp); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// Put overwrites the value at path. Writing "null" deletes the node.
func (c *APIClient) Put(ctx context.Context, path string, payload []byte) error {
	resp, err := c.request(ctx, c.httpClient).
		SetBody(payload).
		Put(resource(path))
	if err != nil {
		return fmt.Errorf("firebase put %s: %w", path, err)
	}
	return checkResponse("put", path, resp)
}

// Stream subscribes to changes at path and invokes onEvent for every event
// until ctx is cancelled or the connection drops.
func (c *APIClient) Stream(ctx context.Context, path string, onEvent func(Event)) error {
	resp, err := c.request(ctx, c.streamClient).
		SetDoNotParseResponse(true).
		Get(resource(path))
	if err != nil {
		return fmt.Errorf("firebase stream %s: %w", path, err)
	}
	body := resp.RawBody()
	defer func() { _ = body.Close() }()

	if resp.StatusCode() >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(body, 4096))
		return fmt.Errorf("firebase stream %s: code=%d, message=%s", path, resp.StatusCode(), strings.TrimSpace(string(raw)))
	}

	err = readEvents(body, onEvent)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("firebase stream %s: %w", path, err)
	}
	return ErrStreamClosed
}

func readEvents(r io.Reader, onEvent func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 32<<20)

	var name string
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name != "" || data.Len() > 0 {
				onEvent(Event{Name: name, Data: bytes.Clone(data.Bytes())})
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return scanner.Err()
}
