package haven

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testUserID = "user-1"

func newTestClient(srv *httptest.Server) *Client {
	return NewClient("test-token",
		WithBaseURL(srv.URL),
		WithSession(testUserID, "test-token"))
}

func writeOK(w http.ResponseWriter, data any) {
	raw, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Result{OK: true, Data: raw})
}

func writeErr(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Result{OK: false, Error: &APIError{Code: code, Message: message}})
}

// fakeConn is a Connectivity stub with a switchable state.
type fakeConn struct{ online bool }

func (f *fakeConn) Online(context.Context) bool { return f.online }

// faultStore is a KVStore whose every operation fails, for exercising the
// silent-failure boundary of the cache.
type faultStore struct{}

func (faultStore) Get(context.Context, string) (string, error) {
	return "", errors.New("disk fault")
}

func (faultStore) Set(context.Context, string, string) error {
	return errors.New("disk fault")
}

func newOfflineStore(t *testing.T, online bool) (*Offline, *fakeConn) {
	t.Helper()
	conn := &fakeConn{online: online}
	return NewOffline(NewMemoryStore(), conn, nil), conn
}
