// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// remoteStatusError folds a non-2xx response into the package sentinels.
// 401 and 403 both become ErrAuthRequired, and every 5xx becomes
// ErrRemoteUnavailable; the engine handles each group uniformly, so finer
// distinctions only live in the wrapped detail text.
func remoteStatusError(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return nil
	}

	detail := strings.TrimSpace(string(resp.Body()))
	if detail == "" {
		detail = http.StatusText(code)
	}

	var sentinel error
	switch {
	case code == http.StatusBadRequest:
		sentinel = ErrBadRequest
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		sentinel = ErrAuthRequired
	case code == http.StatusNotFound:
		sentinel = ErrNotFound
	case code == http.StatusConflict:
		sentinel = ErrConflict
	case code >= http.StatusInternalServerError:
		sentinel = ErrRemoteUnavailable
	default:
		return fmt.Errorf("remote store returned http %d: %s", code, detail)
	}

	return fmt.Errorf("%w: http %d: %s", sentinel, code, detail)
}
