package runtime

import (
	"io"
	"net/http"

	"github.com/kb-labs/kb-plugin-host/internal/harden"
	"github.com/kb-labs/kb-plugin-host/internal/manifest"
	"github.com/kb-labs/kb-plugin-host/internal/policy"
)

// Fetch is the single-callable fetch facade (spec §4.2). On allow it
// forwards to the ambient unrestricted http.Client; on denial it fails with
// a *PermissionError carrying url and allowedPatterns, unless the Guard
// reports a pass-through (spec §4.3).
type Fetch struct {
	policy manifest.Policy
	client *http.Client
	guard  *harden.Guard
}

func newFetch(p manifest.Policy, guard *harden.Guard) *Fetch {
	return &Fetch{policy: p, client: http.DefaultClient, guard: guard}
}

// Response is the minimal response shape handler code consumes.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Do issues req after a Policy check against req.URL.
func (f *Fetch) Do(req *http.Request) (*Response, error) {
	url := req.URL.String()
	if d := policy.CheckFetch(url, f.policy.Network.Fetch); !d.Allow {
		if !(f.guard != nil && f.guard.Evaluate("fetch", url, d)) {
			return nil, &PermissionError{Reason: d.Reason, Details: d.Details}
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Body: body, Header: resp.Header}, nil
}

// Get is a convenience wrapper over Do for a plain GET request.
func (f *Fetch) Get(url string) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return f.Do(req)
}
