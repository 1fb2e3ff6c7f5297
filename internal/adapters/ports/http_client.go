package ports

import "net/http"

// HTTPClient abstracts the HTTP client used by outbound adapters so tests
// can substitute a fake without a network
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
