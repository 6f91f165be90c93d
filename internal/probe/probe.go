// Package probe checks HTTP reachability of environment base URLs. Probes
// feed the poller: a non-matching status or a connection error means "not yet".
package probe

import (
	"context"
	"crypto/tls"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// Prober issues single GET probes. Redirects are not followed so 301/302 from
// the OAuth entry points can be matched directly; certificate verification is
// skipped because the local environments serve self-signed certificates.
type Prober struct {
	client *retryablehttp.Client
}

// New returns a ready Prober.
func New() *Prober {
	c := retryablehttp.NewClient()
	c.RetryMax = 0
	c.Logger = nil
	c.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	c.HTTPClient.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // nolint: gosec
	}
	return &Prober{client: c}
}

// Reachable reports whether url answers with one of the accepted status codes.
// Connection errors report false without error so polling continues.
func (p *Prober) Reachable(ctx context.Context, url string, accepted ...int) (bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	for _, code := range accepted {
		if resp.StatusCode == code {
			return true, nil
		}
	}
	return false, nil
}
