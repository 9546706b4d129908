// server.go adapts the teacher's cmd/ghostnodes HTTP server (gorilla/mux
// routes, TLS 1.3 config, signal-driven shutdown, promhttp metrics) from the
// onion/swarm/directory route set to the Session/Gossip/Router/Revocation
// frame set. Each route delegates to a small interface rather than a
// concrete package, so pkg/transport stays free of import-cycle pressure
// from pkg/session, pkg/gossip, pkg/router and pkg/revocation — those are
// wired together in cmd/cashewnode.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionHandler answers an inbound Session Layer handshake frame with a
// response frame (or an error if the handshake is rejected).
type SessionHandler interface {
	HandleHandshake(frame []byte) ([]byte, error)
}

// GossipHandler processes an inbound Gossip Layer message frame.
type GossipHandler interface {
	HandleGossip(frame []byte) error
}

// RouterRequestHandler processes an inbound ContentRequest frame.
type RouterRequestHandler interface {
	HandleRequest(frame []byte) error
}

// RouterResponseHandler processes an inbound ContentResponse frame.
type RouterResponseHandler interface {
	HandleResponse(frame []byte) error
}

// RevocationHandler processes an inbound key revocation frame.
type RevocationHandler interface {
	HandleRevocation(frame []byte) error
}

// ServerConfig configures the listening transport, including optional
// mTLS material. CertFile/KeyFile/CAFile empty means serve plain TLS
// (or plaintext, with a warning) rather than requiring client certs —
// matching the teacher's own "TLS optional for testing" fallback.
type ServerConfig struct {
	ListenAddress string
	CertFile      string
	KeyFile       string
	CAFile        string // when set, client certificates are required
}

// Server hosts the inter-node wire API.
type Server struct {
	cfg        ServerConfig
	session    SessionHandler
	gossip     GossipHandler
	reqHandler RouterRequestHandler
	respHandler RouterResponseHandler
	revocation RevocationHandler
	httpServer *http.Server
	middleware func(http.Handler) http.Handler
}

// SetMiddleware wraps the whole route tree (rate limiting, bandwidth
// accounting) before Start binds the listener. A nil middleware is a
// no-op, matching the teacher's optional RateLimiter.Middleware wiring.
func (s *Server) SetMiddleware(mw func(http.Handler) http.Handler) {
	s.middleware = mw
}

// NewServer constructs a Server wired to the given handlers. Any handler
// may be nil, in which case its route responds 503.
func NewServer(cfg ServerConfig, session SessionHandler, gossip GossipHandler,
	reqHandler RouterRequestHandler, respHandler RouterResponseHandler,
	revocation RevocationHandler) *Server {
	return &Server{
		cfg:         cfg,
		session:     session,
		gossip:      gossip,
		reqHandler:  reqHandler,
		respHandler: respHandler,
		revocation:  revocation,
	}
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	r := mux.NewRouter()
	api := r.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/session/handshake", s.handleHandshake).Methods("POST")
	api.HandleFunc("/gossip", s.handleGossip).Methods("POST")
	api.HandleFunc("/router/request", s.handleRouterRequest).Methods("POST")
	api.HandleFunc("/router/response", s.handleRouterResponse).Methods("POST")
	api.HandleFunc("/revocation", s.handleRevocation).Methods("POST")

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/metrics", promhttp.Handler().ServeHTTP).Methods("GET")

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
		CipherSuites: []uint16{
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_AES_128_GCM_SHA256,
		},
	}
	if s.cfg.CAFile != "" {
		caCert, err := os.ReadFile(s.cfg.CAFile)
		if err != nil {
			return err
		}
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(caCert)
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	var handler http.Handler = r
	if s.middleware != nil {
		handler = s.middleware(r)
	}

	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddress,
		Handler:      handler,
		TLSConfig:    tlsConfig,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("transport listening on %s", s.cfg.ListenAddress)

	go func() {
		var err error
		if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			log.Println("WARNING: transport running without TLS (use for testing only)")
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("transport server error: %v", err)
		}
	}()

	return nil
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then closes the server.
func (s *Server) WaitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("transport shutting down...")
	if err := s.httpServer.Close(); err != nil {
		log.Printf("error closing transport server: %v", err)
	}
}

// Close shuts the listener down immediately, for use outside signal-driven flows.
func (s *Server) Close() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

func readFrame(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	frame, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return frame, true
}

func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		http.Error(w, "session handling unavailable", http.StatusServiceUnavailable)
		return
	}
	frame, ok := readFrame(w, r)
	if !ok {
		return
	}
	resp, err := s.session.HandleHandshake(frame)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(resp)
}

func (s *Server) handleGossip(w http.ResponseWriter, r *http.Request) {
	if s.gossip == nil {
		http.Error(w, "gossip handling unavailable", http.StatusServiceUnavailable)
		return
	}
	frame, ok := readFrame(w, r)
	if !ok {
		return
	}
	if err := s.gossip.HandleGossip(frame); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRouterRequest(w http.ResponseWriter, r *http.Request) {
	if s.reqHandler == nil {
		http.Error(w, "router request handling unavailable", http.StatusServiceUnavailable)
		return
	}
	frame, ok := readFrame(w, r)
	if !ok {
		return
	}
	if err := s.reqHandler.HandleRequest(frame); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRouterResponse(w http.ResponseWriter, r *http.Request) {
	if s.respHandler == nil {
		http.Error(w, "router response handling unavailable", http.StatusServiceUnavailable)
		return
	}
	frame, ok := readFrame(w, r)
	if !ok {
		return
	}
	if err := s.respHandler.HandleResponse(frame); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRevocation(w http.ResponseWriter, r *http.Request) {
	if s.revocation == nil {
		http.Error(w, "revocation handling unavailable", http.StatusServiceUnavailable)
		return
	}
	frame, ok := readFrame(w, r)
	if !ok {
		return
	}
	if err := s.revocation.HandleRevocation(frame); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
