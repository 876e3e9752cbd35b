package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarhq/hangar/pkg/ignition"
)

// startStubAgent runs an HTTP stub and returns a client pointed at it plus
// the host to dial.
func startStubAgent(t *testing.T, handler http.HandlerFunc) (*Client, string) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return NewClient(Config{Port: port, Token: "test-token"}, nil), host
}

func TestSendCommandRoundTrip(t *testing.T) {
	var gotCmd ignition.Command
	var gotAuth string

	client, host := startStubAgent(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/command", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotCmd))
		fmt.Fprint(w, `{"success":true,"output":{"version":"1.4.2"}}`)
	})

	res, err := client.SendCommand(context.Background(), host, ignition.Command{
		Action:  "health",
		Payload: json.RawMessage(`{"deep":true}`),
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.JSONEq(t, `{"version":"1.4.2"}`, string(res.Output))
	assert.Equal(t, "health", gotCmd.Action)
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestSendCommandAgentReportedFailure(t *testing.T) {
	client, host := startStubAgent(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success":false,"error":"database not ready"}`)
	})

	res, err := client.SendCommand(context.Background(), host, ignition.Command{Action: "health"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "database not ready", res.Error)
}

func TestSendCommandServerErrorIsTransient(t *testing.T) {
	client, host := startStubAgent(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	_, err := client.SendCommand(context.Background(), host, ignition.Command{Action: "health"})
	require.Error(t, err)
	assert.True(t, ignition.IsTransient(err))
}

func TestSendCommandAuthFailureIsPermanent(t *testing.T) {
	client, host := startStubAgent(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	})

	_, err := client.SendCommand(context.Background(), host, ignition.Command{Action: "health"})
	require.Error(t, err)
	assert.False(t, ignition.IsRetryable(err))
}

func TestSendCommandUnreachableHostIsTransient(t *testing.T) {
	client := NewClient(Config{Port: 1, Timeout: 1}, nil)

	_, err := client.SendCommand(context.Background(), "127.0.0.1", ignition.Command{Action: "health"})
	require.Error(t, err)
	assert.True(t, ignition.IsTransient(err))
}
