package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iliyamo/paycore/internal/apperr"
)

// maxProviderBody bounds how much of a provider response is read.
const maxProviderBody = 1 << 20

// NewHTTPClient returns the client used for provider calls. Every call is
// bounded by timeout so a slow provider fails the request instead of
// hanging it.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// errProviderUnavailable and errProviderRejected are the client-facing
// forms of provider failures; the provider's own message stays in the
// wrapped cause for logs.
var (
	errProviderUnavailable = apperr.Unavailable("payment provider unavailable").WithCode("PROVIDER_UNAVAILABLE")
	errProviderRejected    = apperr.BadRequest("payment provider rejected the request").WithCode("PROVIDER_REJECTED")
)

// do sends req and decodes a JSON body into out. Transport errors and 5xx
// responses are Unavailable; other non-2xx responses are BadRequest.
func do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return errProviderUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return errProviderUnavailable.Wrap(err)
	}
	if resp.StatusCode >= 500 {
		return errProviderUnavailable.Wrap(fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errProviderRejected.Wrap(fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errProviderUnavailable.Wrap(errors.Join(errors.New("decode provider response"), err))
	}
	return nil
}
