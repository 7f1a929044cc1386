package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type wireRec struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type createReq struct {
	ClientID string  `json:"clientId"`
	Record   wireRec `json:"record"`
}

type deleteReq struct {
	ID string `json:"id"`
}

func newTestClient(srv *httptest.Server, token string) *Client[wireRec, createReq, wireRec, deleteReq] {
	return NewClient[wireRec, createReq, wireRec, deleteReq](srv.URL, "tasks", token, srv.Client())
}

func TestBulkSyncRoundTrip(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	var gotReq BulkRequest[createReq, wireRec, deleteReq]

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(BulkResult[wireRec]{
			Created: []Created[wireRec]{{ClientID: "tmp-1", Record: wireRec{ID: "srv-1", Title: "a"}}},
			Updated: []wireRec{{ID: "srv-2", Title: "b"}},
			Deleted: []string{"srv-3"},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv, "secret")
	req := BulkRequest[createReq, wireRec, deleteReq]{
		Creates: []createReq{{ClientID: "tmp-1", Record: wireRec{Title: "a"}}},
		Deletes: []deleteReq{{ID: "srv-3"}},
	}
	res, err := c.BulkSync(context.Background(), req)
	if err != nil {
		t.Fatalf("BulkSync failed: %v", err)
	}

	if gotPath != "/api/sync/tasks" {
		t.Errorf("path = %q, want /api/sync/tasks", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q, want Bearer secret", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if len(gotReq.Creates) != 1 || gotReq.Creates[0].ClientID != "tmp-1" {
		t.Errorf("server saw creates %+v", gotReq.Creates)
	}

	if len(res.Created) != 1 || res.Created[0].Record.ID != "srv-1" {
		t.Errorf("created = %+v", res.Created)
	}
	if len(res.Updated) != 1 || res.Updated[0].ID != "srv-2" {
		t.Errorf("updated = %+v", res.Updated)
	}
	if len(res.Deleted) != 1 || res.Deleted[0] != "srv-3" {
		t.Errorf("deleted = %+v", res.Deleted)
	}
}

func TestFetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		json.NewEncoder(w).Encode([]wireRec{{ID: "1", Title: "a"}, {ID: "2", Title: "b"}})
	}))
	defer srv.Close()

	items, err := newTestClient(srv, "").FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(items) != 2 || items[0].ID != "1" || items[1].ID != "2" {
		t.Errorf("items = %+v", items)
	}
}

func TestNoAuthHeaderWithoutToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv, "  ").FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("auth header = %q, want none", gotAuth)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"stale_write","message":"record changed on server"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, "").FetchAll(context.Background())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", httpErr.StatusCode)
	}
	if httpErr.Code != "stale_write" || httpErr.Message != "record changed on server" {
		t.Errorf("envelope = %q/%q", httpErr.Code, httpErr.Message)
	}
}

func TestErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, "").FetchAll(context.Background())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway || httpErr.Message != "gateway timeout" {
		t.Errorf("got %d %q", httpErr.StatusCode, httpErr.Message)
	}
}
