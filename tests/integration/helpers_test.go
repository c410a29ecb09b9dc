//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// API endpoints
const (
	relayPath  = "/relay"
	healthPath = "/health"
)

// sendRelayPost sends a JSON POST to the relay and returns the response.
func sendRelayPost(t *testing.T, serverURL string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err, "failed to marshal request payload")

	req, err := http.NewRequest(http.MethodPost, serverURL+relayPath, bytes.NewReader(body))
	require.NoError(t, err, "failed to create request")

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "failed to send request")
	return resp
}

// sendRelayGet sends a GET to the relay with the given raw query.
func sendRelayGet(t *testing.T, serverURL, rawQuery string, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, serverURL+relayPath+"?"+rawQuery, nil)
	require.NoError(t, err, "failed to create request")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "failed to send request")
	return resp
}

// readBody reads and closes the response body.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer closeBody(resp)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	return string(body)
}

// closeBody is a helper to close response body in defer statements.
func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
