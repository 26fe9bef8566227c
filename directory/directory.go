// Package directory queries the Microsoft Graph compatible directory for the
// signed-in identity's profile and group memberships.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/helpdesk-portal/internal/metrics"
	"golang.org/x/oauth2"
)

const (
	memberOfPath = "/me/memberOf"
	mePath       = "/me"

	// maxPages bounds @odata.nextLink traversal.
	maxPages = 50
	// maxErrorBody is how much of a failed response is read for diagnostics.
	maxErrorBody = 4096
)

// Group is one entry of a memberOf response.
type Group struct {
	ID          string `json:"id"`
	ODataType   string `json:"@odata.type,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Profile is the subset of the /me resource the portal displays.
type Profile struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	GivenName         string `json:"givenName"`
	Surname           string `json:"surname"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	JobTitle          string `json:"jobTitle"`
}

type memberPage struct {
	Value    *[]Group `json:"value"`
	NextLink string   `json:"@odata.nextLink"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the directory API on behalf of a bearer token.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// New creates a directory client. httpClient may be nil, m may be nil.
func New(baseURL string, httpClient *http.Client, m *metrics.Metrics) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("[directory New] invalid base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[directory New] base url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: u, httpClient: httpClient, metrics: m}, nil
}

// MemberOf returns the ids of every directory object the identity is a
// direct member of, following pagination links.
func (c *Client) MemberOf(ctx context.Context, accessToken string) (ids []string, err error) {
	start := time.Now()
	defer func() { c.observe(start, err) }()

	groups, err := c.Groups(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	ids = make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

// Groups returns the full memberOf records.
func (c *Client) Groups(ctx context.Context, accessToken string) ([]Group, error) {
	client := c.authorized(ctx, accessToken)

	var groups []Group
	next := c.baseURL.String() + memberOfPath
	for page := 0; next != ""; page++ {
		if page == maxPages {
			return nil, &ParseError{Reason: fmt.Sprintf("more than %d pages of memberships", maxPages)}
		}

		var body memberPage
		if err := c.getJSON(ctx, client, next, &body); err != nil {
			return nil, err
		}
		if body.Value == nil {
			return nil, &ParseError{Reason: `missing "value" collection`}
		}
		for i, g := range *body.Value {
			if g.ID == "" {
				return nil, &ParseError{Reason: fmt.Sprintf("entry %d has no id", len(groups)+i)}
			}
		}
		groups = append(groups, *body.Value...)

		next = body.NextLink
		if next != "" && !c.sameOrigin(next) {
			return nil, &ParseError{Reason: fmt.Sprintf("next link %q leaves the directory host", next)}
		}
	}
	return groups, nil
}

// Me returns the signed-in identity's profile.
func (c *Client) Me(ctx context.Context, accessToken string) (*Profile, error) {
	var p Profile
	if err := c.getJSON(ctx, c.authorized(ctx, accessToken), c.baseURL.String()+mePath, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, &ParseError{Reason: "profile has no id"}
	}
	return &p, nil
}

func (c *Client) authorized(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

func (c *Client) getJSON(ctx context.Context, client *http.Client, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("[directory getJSON] build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("[directory getJSON] GET %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ParseError{Reason: "invalid json", Err: err}
	}
	return nil
}

func statusError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		se.Code = eb.Error.Code
		se.Message = eb.Error.Message
	}
	return se
}

func (c *Client) sameOrigin(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Scheme == c.baseURL.Scheme && u.Host == c.baseURL.Host
}

func (c *Client) observe(start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.DirectoryRequestDuration.Observe(time.Since(start).Seconds())
	c.metrics.DirectoryRequestsTotal.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	switch err.(type) {
	case nil:
		return "ok"
	case *StatusError:
		return "status_error"
	case *ParseError:
		return "parse_error"
	default:
		return "transport_error"
	}
}
