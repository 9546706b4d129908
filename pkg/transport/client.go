package transport

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ClientConfig holds mTLS configuration for dialing other nodes, adapted
// from the teacher's mtls.Config.
type ClientConfig struct {
	CAFile   string
	CertFile string
	KeyFile  string
	Timeout  time.Duration
}

// Client sends wire frames to remote nodes over mutual TLS HTTP, the same
// shape as the teacher's mtls.Client generalized from onion-packet/swarm
// replication endpoints to the Session/Gossip/Router/Revocation frames.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a Client from a ClientConfig.
func NewClient(config ClientConfig) (*Client, error) {
	caCert, err := os.ReadFile(config.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		CipherSuites: []uint16{
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_AES_128_GCM_SHA256,
		},
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{httpClient: &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig:     tlsConfig,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}}, nil
}

func (c *Client) post(address, path string, body []byte) ([]byte, error) {
	url := fmt.Sprintf("https://%s%s", address, path)
	resp, err := c.httpClient.Post(url, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("%s failed with status %d: %s", path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// SendHandshake delivers a Session Layer handshake message.
func (c *Client) SendHandshake(address string, frame []byte) ([]byte, error) {
	return c.post(address, "/v1/session/handshake", frame)
}

// SendGossip delivers a Gossip Layer message.
func (c *Client) SendGossip(address string, frame []byte) error {
	_, err := c.post(address, "/v1/gossip", frame)
	return err
}

// SendRouterRequest delivers a ContentRequest to the next hop.
func (c *Client) SendRouterRequest(address string, frame []byte) error {
	_, err := c.post(address, "/v1/router/request", frame)
	return err
}

// SendRouterResponse delivers a ContentResponse back along the reverse path.
func (c *Client) SendRouterResponse(address string, frame []byte) error {
	_, err := c.post(address, "/v1/router/response", frame)
	return err
}

// SendRevocation broadcasts a signed key revocation to a peer.
func (c *Client) SendRevocation(address string, frame []byte) error {
	_, err := c.post(address, "/v1/revocation", frame)
	return err
}

// HealthCheck asks a node whether it considers itself healthy.
func (c *Client) HealthCheck(address string) error {
	url := fmt.Sprintf("https://%s/health", address)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
