package adminclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrLoginFailed is returned when the site does not accept the login.
var ErrLoginFailed = errors.New("login failed")

const (
	loginPath     = "/admin/login"
	authCheckPath = "/admin/auth"
)

// Property is the catalog entry shown by the CLI.
type Property struct {
	ID          string
	Slug        string
	Title       string
	Status      string
	Highlighted bool
	Images      int
}

// Client is an HTTP client for one site. It keeps the session cookies.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client for baseURL. A nil httpClient gets a default with
// its own cookie jar. Redirects are never followed: the site redirects a
// request whose session is gone, and that must reach Interpret as is.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient.Jar = jar
	}
	if httpClient.CheckRedirect == nil {
		httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Client{base: base, http: httpClient}, nil
}

func (c *Client) url(path string) *url.URL {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	return &u
}

// do sends a request and returns the interpreted result.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (Result, error) {
	target := c.url(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	return Interpret(target, resp, data), nil
}

// Login signs in and confirms the account is an allowed admin.
func (c *Client) Login(ctx context.Context, email, password string) error {
	form := url.Values{"email": {email}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(loginPath).String(), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// Success answers with a redirect to the dashboard; a failed login
	// renders the form again.
	if resp.StatusCode != http.StatusSeeOther && resp.StatusCode != http.StatusFound {
		return fmt.Errorf("%w: %s", ErrLoginFailed, statusText(resp))
	}

	res, err := c.CheckAuth(ctx)
	if err != nil {
		return err
	}
	if res.Kind != Success {
		return fmt.Errorf("%w: %s", ErrLoginFailed, res.Message)
	}
	return nil
}

// CheckAuth asks the site whether the current session is an admin.
func (c *Client) CheckAuth(ctx context.Context) (Result, error) {
	return c.do(ctx, http.MethodGet, authCheckPath, nil, "")
}

// DeleteProperty deletes a property. The error is only set for transport
// failures; API errors are reported in the Result.
func (c *Client) DeleteProperty(ctx context.Context, id string) (Result, error) {
	return c.do(ctx, http.MethodDelete, "/admin/properties/"+url.PathEscape(id), nil, "")
}

// ListProperties reads the public catalog.
func (c *Client) ListProperties(ctx context.Context) ([]Property, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/properties").String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK || !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("list properties: %s", statusText(resp))
	}

	var props []Property
	gjson.GetBytes(data, "properties").ForEach(func(_, p gjson.Result) bool {
		props = append(props, Property{
			ID:          p.Get("id").String(),
			Slug:        p.Get("slug").String(),
			Title:       p.Get("title").String(),
			Status:      p.Get("status").String(),
			Highlighted: p.Get("highlighted").Bool(),
			Images:      len(p.Get("images").Array()),
		})
		return true
	})
	return props, nil
}
