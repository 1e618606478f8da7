package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"netpresence/internal/snapshot"
)

const (
	defaultUsernameField = "txt_Username"
	defaultPasswordField = "txt_Password"
	maxPayloadBytes      = 8 << 20
)

// ErrPayloadTooLarge is wrapped when a page exceeds the payload limit.
var ErrPayloadTooLarge = errors.New("gateway: payload too large")

// HTTPClient is a FetchCollaborator that logs into the gateway's admin
// page with a form post and reads the devices page in the same session.
type HTTPClient struct {
	baseURL       string
	loginPath     string
	usernameField string
	passwordField string
	format        snapshot.Format
	timeout       time.Duration
	maxPayload    int64
}

// HTTPOption configures the client.
type HTTPOption func(*HTTPClient)

// WithLoginPath overrides the login form action, relative to the base URL.
func WithLoginPath(path string) HTTPOption {
	return func(c *HTTPClient) {
		if path != "" {
			c.loginPath = path
		}
	}
}

// WithFormFields overrides the login form field names.
func WithFormFields(username, password string) HTTPOption {
	return func(c *HTTPClient) {
		if username != "" {
			c.usernameField = username
		}
		if password != "" {
			c.passwordField = password
		}
	}
}

// WithTimeout bounds each HTTP request.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithMaxPayload caps the size of the devices page.
func WithMaxPayload(n int64) HTTPOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.maxPayload = n
		}
	}
}

// NewHTTPClient constructs a gateway client.
func NewHTTPClient(baseURL string, format snapshot.Format, opts ...HTTPOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, errors.New("gateway: empty base url")
	}
	if !format.IsValid() {
		return nil, snapshot.ErrUnknownFormat
	}
	c := &HTTPClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		loginPath:     "/login.cgi",
		usernameField: defaultUsernameField,
		passwordField: defaultPasswordField,
		format:        format,
		timeout:       10 * time.Second,
		maxPayload:    maxPayloadBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchSnapshot logs in and downloads targetURL. Each call uses a fresh
// cookie jar so sessions never leak between cycles.
func (c *HTTPClient) FetchSnapshot(ctx context.Context, creds Credentials, targetURL string) (Snapshot, error) {
	if targetURL == "" {
		return Snapshot{}, &FetchError{Reason: ReasonUnreachable, Err: errors.New("empty target url")}
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return Snapshot{}, &FetchError{Reason: ReasonUnreachable, Err: err}
	}
	client := &http.Client{Timeout: c.timeout, Jar: jar}

	if err := c.login(ctx, client, creds); err != nil {
		return Snapshot{}, err
	}

	body, err := c.get(ctx, client, c.resolve(targetURL))
	if err != nil {
		return Snapshot{}, err
	}
	if c.looksLikeLoginPage(body) {
		return Snapshot{}, &FetchError{Reason: ReasonAuth, Err: errors.New("session redirected to login page")}
	}
	return Snapshot{Raw: body, Format: c.format}, nil
}

func (c *HTTPClient) login(ctx context.Context, client *http.Client, creds Credentials) error {
	if creds.Username == "" {
		return &FetchError{Reason: ReasonAuth, Err: errors.New("empty username")}
	}
	form := url.Values{}
	form.Set(c.usernameField, creds.Username)
	form.Set(c.passwordField, creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(c.loginPath), strings.NewReader(form.Encode()))
	if err != nil {
		return &FetchError{Reason: ReasonUnreachable, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, c.maxPayload))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &FetchError{Reason: ReasonAuth, Err: fmt.Errorf("login http %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return &FetchError{Reason: ReasonStatus, Err: fmt.Errorf("login http %d", resp.StatusCode)}
	}
	if c.looksLikeLoginPage(body) {
		return &FetchError{Reason: ReasonAuth, Err: errors.New("login form returned again")}
	}
	return nil
}

func (c *HTTPClient) get(ctx context.Context, client *http.Client, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{Reason: ReasonUnreachable, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &FetchError{Reason: ReasonAuth, Err: fmt.Errorf("http %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return nil, &FetchError{Reason: ReasonStatus, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxPayload+1))
	if err != nil {
		return nil, classify(ctx, err)
	}
	if int64(len(body)) > c.maxPayload {
		return nil, &FetchError{Reason: ReasonStatus, Err: fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, c.maxPayload)}
	}
	return body, nil
}

// looksLikeLoginPage detects the gateway echoing its login form.
func (c *HTTPClient) looksLikeLoginPage(body []byte) bool {
	return bytes.Contains(body, []byte(`id="`+c.usernameField+`"`)) ||
		bytes.Contains(body, []byte(`name="`+c.usernameField+`"`))
}

func (c *HTTPClient) resolve(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return c.baseURL + target
}
