package acs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/EmpoweredVote/tract-census/internal/messages"
)

const component = "fetch"

// MaxBodySize caps a response body. A state's tract table is a few MB.
const MaxBodySize = 64 << 20

// Fetcher performs the plain JSON GETs the updater needs. It never retries.
type Fetcher struct {
	httpClient  *http.Client
	maxBodySize int64
}

// NewFetcher creates a fetcher whose requests give up after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxBodySize: MaxBodySize,
	}
}

// Fetch GETs rawURL and returns the JSON body on HTTP 200.
//
// Any failure (transport error, timeout, non-200 status, invalid JSON, or an
// empty JSON array) is logged and reported as a nil result. Callers that need
// the data must check for nil themselves.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) json.RawMessage {
	messages.LogStep(component, "Fetching Data...")
	messages.LogRequest(component, http.MethodGet, RedactURL(rawURL))
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		messages.LogError(component, "create request", redactError(err))
		return nil
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		messages.LogError(component, "URL", redactError(err))
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		messages.LogError(component, "read body", redactError(err))
		return nil
	}
	if int64(len(body)) > f.maxBodySize {
		messages.LogError(component, "read body", fmt.Errorf("response exceeds %d bytes", f.maxBodySize))
		return nil
	}
	messages.LogResponse(component, resp.StatusCode, time.Since(start), len(body))

	if resp.StatusCode != http.StatusOK {
		messages.LogError(component, "HTTP", fmt.Errorf("status %d", resp.StatusCode))
		return nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		messages.LogError(component, "decode", err)
		return nil
	}
	if compact.String() == "[]" {
		return nil
	}
	return json.RawMessage(compact.Bytes())
}

// RedactURL hides the key query parameter so URLs can be logged.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return redactKeyParam(rawURL)
	}
	q := u.Query()
	if q.Get("key") == "" {
		return rawURL
	}
	q.Set("key", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}

// redactError hides the key in the URL that *url.Error carries.
func redactError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	return &url.Error{Op: ue.Op, URL: RedactURL(ue.URL), Err: ue.Err}
}

// redactKeyParam blanks key=... in a string url.Parse rejected.
func redactKeyParam(s string) string {
	i := strings.Index(s, "key=")
	if i < 0 {
		return s
	}
	i += len("key=")
	end := strings.IndexByte(s[i:], '&')
	if end < 0 {
		return s[:i] + "REDACTED"
	}
	return s[:i] + "REDACTED" + s[i+end:]
}
