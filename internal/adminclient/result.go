// Package adminclient talks to the admin API of a running site and drives
// the delete workflow used by the command line tool.
package adminclient

import (
	"mime"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// Kind classifies the outcome of an admin API call.
type Kind int

const (
	// Redirected means the request was bounced, typically to the login page.
	Redirected Kind = iota
	// MalformedResponse means the body was not the JSON the API emits.
	MalformedResponse
	// DomainError is a JSON error from the API or a non-2xx status.
	DomainError
	// Warning is a success carrying a warning, e.g. orphaned images.
	Warning
	Success
)

func (k Kind) String() string {
	switch k {
	case Redirected:
		return "redirected"
	case MalformedResponse:
		return "malformed"
	case DomainError:
		return "error"
	case Warning:
		return "warning"
	case Success:
		return "success"
	default:
		return "unknown"
	}
}

// Removed reports whether the target is gone on the server.
func (k Kind) Removed() bool {
	return k == Warning || k == Success
}

// Result is the interpreted response of one call.
type Result struct {
	Kind    Kind
	Status  int
	Message string
	// Detail carries the storage error accompanying a warning.
	Detail string
}

// Interpret classifies resp, whose body has already been read. requested is
// the URL the caller asked for; a final URL that differs from it means a
// redirect was followed. Checks run in order and the first match wins.
func Interpret(requested *url.URL, resp *http.Response, body []byte) Result {
	res := Result{Status: resp.StatusCode}

	if wasRedirected(requested, resp) {
		res.Kind = Redirected
		res.Message = "session expired, sign in again"
		return res
	}

	if !isJSON(resp.Header.Get("Content-Type")) || !gjson.ValidBytes(body) {
		res.Kind = MalformedResponse
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			res.Message = "unexpected response from server"
		} else {
			res.Message = statusText(resp)
		}
		return res
	}

	parsed := gjson.ParseBytes(body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || parsed.Get("error").Exists() {
		res.Kind = DomainError
		res.Message = parsed.Get("error").String()
		if res.Message == "" {
			res.Message = statusText(resp)
		}
		return res
	}

	if w := parsed.Get("warning"); w.Exists() && w.String() != "" {
		res.Kind = Warning
		res.Message = w.String()
		res.Detail = parsed.Get("storageError").String()
		return res
	}

	res.Kind = Success
	return res
}

func wasRedirected(requested *url.URL, resp *http.Response) bool {
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return true
	}
	if requested == nil || resp.Request == nil || resp.Request.URL == nil {
		return false
	}
	final := resp.Request.URL
	return final.Path != requested.Path || final.Host != requested.Host
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

func statusText(resp *http.Response) string {
	if t := http.StatusText(resp.StatusCode); t != "" {
		return t
	}
	return resp.Status
}
