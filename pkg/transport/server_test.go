package transport

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

// the HTTP handler methods are exercised directly against an
// httptest server wired with a plain mux.Router, mirroring the
// teacher's own test style of hitting handlers through httptest
// rather than standing up real TLS.

type fakeGossip struct {
	received []byte
	fail     bool
}

func (f *fakeGossip) HandleGossip(frame []byte) error {
	if f.fail {
		return errors.New("rejected")
	}
	f.received = frame
	return nil
}

func newTestMux(s *Server) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/gossip", s.handleGossip).Methods("POST")
	api.HandleFunc("/session/handshake", s.handleHandshake).Methods("POST")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	return r
}

func TestHandleGossipAcceptsFrame(t *testing.T) {
	g := &fakeGossip{}
	s := NewServer(ServerConfig{}, nil, g, nil, nil, nil)
	srv := httptest.NewServer(newTestMux(s))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/gossip", "application/octet-stream", bytes.NewReader([]byte("frame-data")))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if string(g.received) != "frame-data" {
		t.Errorf("handler received %q, want %q", g.received, "frame-data")
	}
}

func TestHandleGossipRejectsOnHandlerError(t *testing.T) {
	g := &fakeGossip{fail: true}
	s := NewServer(ServerConfig{}, nil, g, nil, nil, nil)
	srv := httptest.NewServer(newTestMux(s))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/gossip", "application/octet-stream", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestHandleGossipUnavailableWithoutHandler(t *testing.T) {
	s := NewServer(ServerConfig{}, nil, nil, nil, nil, nil)
	srv := httptest.NewServer(newTestMux(s))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/gossip", "application/octet-stream", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

type fakeSession struct{}

func (fakeSession) HandleHandshake(frame []byte) ([]byte, error) {
	return append([]byte("ack:"), frame...), nil
}

func TestHandleHandshakeReturnsResponseFrame(t *testing.T) {
	s := NewServer(ServerConfig{}, fakeSession{}, nil, nil, nil, nil)
	srv := httptest.NewServer(newTestMux(s))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/session/handshake", "application/octet-stream", bytes.NewReader([]byte("hello")))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ack:hello" {
		t.Errorf("body = %q, want %q", body, "ack:hello")
	}
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(ServerConfig{}, nil, nil, nil, nil, nil)
	srv := httptest.NewServer(newTestMux(s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
