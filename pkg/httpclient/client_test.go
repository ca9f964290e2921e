package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestPostJSONSendsBasicAuthAndBody(t *testing.T) {
	var gotUser, gotPass string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Username = "signal"
	cfg.Password = "secret"
	client := NewClient(cfg, testLogger())

	resp, err := client.PostJSON(context.Background(), server.URL+"/notification/email", map[string]any{"subject": "hi"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "signal", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, "hi", gotBody["subject"])
}

func TestDoReturnsErrorOnTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(DefaultConfig(), testLogger())
	_, err := client.Post(context.Background(), url)
	assert.Error(t, err)
}

func TestInsecureSkipVerifyAcceptsSelfSignedCertificates(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	strict := NewClient(DefaultConfig(), testLogger())
	_, err := strict.Post(context.Background(), server.URL)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.InsecureSkipVerify = true
	lenient := NewClient(cfg, testLogger())
	resp, err := lenient.Post(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
