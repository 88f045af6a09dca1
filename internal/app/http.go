package app

import (
	"net/http"
	"time"
)

// newHTTPClient returns the client shared by every action of an app.
// Per-request timeouts are set by the actions themselves.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
