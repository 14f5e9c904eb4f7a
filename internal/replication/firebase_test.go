package replication

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func dialFirebase(t *testing.T, url string) Mirror {
	t.Helper()
	creds := validCreds()
	creds.DatabaseURL = url
	m, err := NewFirebaseDialer(time.Second, zaptest.NewLogger(t)).Dial(context.Background(), creds)
	require.NoError(t, err)
	return m
}

func TestFirebaseMirror_WatchRootPutAndPatchRefetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.URL.Query().Get("auth"))
		if r.Header.Get("Accept") == "text/event-stream" {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: put\ndata: {\"path\":\"/\",\"data\":[{\"id\":\"b1\"}]}\n\n")
			fmt.Fprint(w, "event: keep-alive\ndata: null\n\n")
			fmt.Fprint(w, "event: patch\ndata: {\"path\":\"/0\",\"data\":{\"name\":\"x\"}}\n\n")
			return
		}
		assert.Equal(t, "/batches.json", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":"b1","name":"x"}]`)
	}))
	defer srv.Close()

	m := dialFirebase(t, srv.URL)
	var got []string
	err := m.Watch(context.Background(), "batches", func(data []byte) { got = append(got, string(data)) })

	require.Error(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, `[{"id":"b1"}]`, got[0])
	assert.JSONEq(t, `[{"id":"b1","name":"x"}]`, got[1])
}

func TestFirebaseMirror_WatchRevoked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: auth_revoked\ndata: \"credential is no longer valid\"\n\n")
	}))
	defer srv.Close()

	err := dialFirebase(t, srv.URL).Watch(context.Background(), "users", func([]byte) {})
	assert.ErrorIs(t, err, ErrSubscriptionRevoked)
}

func TestFirebaseMirror_PingAndPut(t *testing.T) {
	var wiped bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/.info/serverTimeOffset.json":
			_, _ = io.WriteString(w, "0")
		case r.Method == http.MethodPut && r.URL.Path == "/.json":
			wiped = true
			_, _ = io.WriteString(w, "null")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	m := dialFirebase(t, srv.URL)
	require.NoError(t, m.Ping(context.Background()))
	require.NoError(t, m.Put(context.Background(), RootPath, []byte("null")))
	assert.True(t, wiped)
}
