package httpclient

import (
	"net/http"
	"time"
)

// sharedTransport is reused by every outbound client so that Weaviate,
// Ollama and the chat API keep warm connections.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        50,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     120 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
	ForceAttemptHTTP2:   true,
}

// NewPooledClient returns a client on the shared transport. A zero timeout
// leaves the request bounded only by its context, which streaming
// generation relies on.
func NewPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}
