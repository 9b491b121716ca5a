package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one backup request end to end. It sits above the
// largest per-stage budget the server will ever grant, so a healthy stream
// is never cut off by the client.
const DefaultTimeout = 100 * time.Minute

// Result is the terminal payload of a successful backup.
type Result struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// Client consumes the backup API. It prefers the streamed event protocol
// and falls back to buffered JSON when the server answers with a plain
// document instead.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Backup starts a backup and follows it to completion. body is marshaled
// as the request document. onEvent, when non-nil, observes every decoded
// event including the terminal one. The first terminal event decides the
// outcome; anything the server sends after it is ignored.
func (c *Client) Backup(ctx context.Context, body any, onEvent func(Event)) (*Result, error) {
	return c.do(ctx, body, "text/event-stream", onEvent)
}

// BackupBuffered runs a backup without the event stream: the server holds
// the response until the run finishes and answers with the JSON envelope.
func (c *Client) BackupBuffered(ctx context.Context, body any) (*Result, error) {
	return c.do(ctx, body, "application/json", nil)
}

func (c *Client) do(ctx context.Context, body any, accept string, onEvent func(Event)) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/backups", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backup request: %w", err)
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		return decodeJSONOutcome(resp)
	}
	return consumeStream(resp.Body, onEvent)
}

// consumeStream reads chunks off the wire until the first terminal event.
func consumeStream(body io.Reader, onEvent func(Event)) (*Result, error) {
	var dec Decoder
	buf := make([]byte, 4096)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				if res, terminal, evErr := dispatch(ev, onEvent); terminal {
					return res, evErr
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stream: %w", err)
		}
	}

	// The server may have closed the stream right at the frame boundary.
	if ev, ok := dec.Flush(); ok {
		if res, terminal, evErr := dispatch(ev, onEvent); terminal {
			return res, evErr
		}
	}
	return nil, errors.New("stream ended without a terminal event")
}

func dispatch(ev Event, onEvent func(Event)) (*Result, bool, error) {
	if onEvent != nil {
		onEvent(ev)
	}
	switch ev.Kind {
	case KindComplete:
		return &Result{Name: ev.Name, Provider: ev.Provider, URL: ev.URL}, true, nil
	case KindError:
		msg := ev.Message
		if msg == "" {
			msg = "backup failed"
		}
		if ev.ErrorDetails != "" {
			return nil, true, fmt.Errorf("%s: %s", msg, ev.ErrorDetails)
		}
		return nil, true, errors.New(msg)
	default:
		return nil, false, nil
	}
}

// decodeJSONOutcome handles the non-streaming response envelope.
func decodeJSONOutcome(resp *http.Response) (*Result, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		Success bool    `json:"success"`
		Data    *Result `json:"data"`
		Error   *struct {
			Message       string `json:"message"`
			Details       string `json:"details"`
			OriginalError string `json:"originalError"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("backup API: status %d: unexpected response body", resp.StatusCode)
	}

	if envelope.Success && envelope.Data != nil {
		return envelope.Data, nil
	}
	if envelope.Error != nil {
		detail := envelope.Error.Details
		if detail == "" {
			detail = envelope.Error.OriginalError
		}
		if detail != "" {
			return nil, fmt.Errorf("%s: %s", envelope.Error.Message, detail)
		}
		return nil, errors.New(envelope.Error.Message)
	}
	return nil, fmt.Errorf("backup API: status %d", resp.StatusCode)
}
