// Package tito is a small client for the Tito ticketing API: ticket search for
// graduate enrichment and check-in list check-ins at registration desks.
package tito

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL        = "https://api.tito.io/v3"
	defaultCheckinBaseURL = "https://checkin.tito.io"
	errorBodyReadLimit    = 1024
)

var (
	errTokenRequired = errors.New("tito api token is required")
	errEventRequired = errors.New("tito account and event are required")

	// ErrInvalidCheckin marks check-in input the API can never accept.
	ErrInvalidCheckin = errors.New("tito invalid check-in")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tito %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Ticket is the subset of a Tito ticket used for enrichment.
type Ticket struct {
	ID    string
	Slug  string
	Name  string
	Email string
	Tags  []string
}

// HasTag reports whether the ticket carries the tag, ignoring case.
func (t Ticket) HasTag(tag string) bool {
	for _, candidate := range t.Tags {
		if strings.EqualFold(strings.TrimSpace(candidate), strings.TrimSpace(tag)) {
			return true
		}
	}
	return false
}

// Client talks to the Tito admin and check-in APIs.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	checkinBaseURL string
	account        string
	event          string
	token          string
	timeout        time.Duration
}

// Option configures optional client behaviour.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the admin API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithCheckinBaseURL overrides the check-in API base URL.
func WithCheckinBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.checkinBaseURL = trimmed
		}
	}
}

// WithTimeout sets the request timeout. It applies to a client supplied
// through WithHTTPClient too, whatever the option order, without mutating
// the caller's client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient builds a client scoped to one account/event.
func NewClient(token, account, event string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errTokenRequired
	}
	account = strings.TrimSpace(account)
	event = strings.TrimSpace(event)
	if account == "" || event == "" {
		return nil, errEventRequired
	}
	client := &Client{
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		baseURL:        defaultBaseURL,
		checkinBaseURL: defaultCheckinBaseURL,
		account:        account,
		event:          event,
		token:          token,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.timeout > 0 {
		withTimeout := *client.httpClient
		withTimeout.Timeout = client.timeout
		client.httpClient = &withTimeout
	}
	return client, nil
}

type ticketPayload struct {
	ID        int64    `json:"id"`
	Slug      string   `json:"slug"`
	Name      string   `json:"name"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	TagNames  []string `json:"tag_names"`
}

type ticketsResponse struct {
	Tickets []ticketPayload `json:"tickets"`
}

// SearchTickets runs a free-text ticket search.
func (c *Client) SearchTickets(ctx context.Context, query string) ([]Ticket, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	endpoint := fmt.Sprintf("%s/%s/%s/tickets?%s", c.baseURL, url.PathEscape(c.account), url.PathEscape(c.event),
		url.Values{"search[q]": {query}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build ticket search request: %w", err)
	}
	c.authorize(req)

	var payload ticketsResponse
	if err := c.do(req, "search tickets", &payload); err != nil {
		return nil, err
	}

	tickets := make([]Ticket, 0, len(payload.Tickets))
	for _, t := range payload.Tickets {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			name = strings.TrimSpace(t.FirstName + " " + t.LastName)
		}
		tickets = append(tickets, Ticket{
			ID:    strconv.FormatInt(t.ID, 10),
			Slug:  t.Slug,
			Name:  name,
			Email: t.Email,
			Tags:  t.TagNames,
		})
	}
	return tickets, nil
}

// FindByTag returns the first ticket tagged with tag, or nil when none matches.
// Graduates are tagged with their convocation number.
func (c *Client) FindByTag(ctx context.Context, tag string) (*Ticket, error) {
	tickets, err := c.SearchTickets(ctx, tag)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		if tickets[i].HasTag(tag) {
			return &tickets[i], nil
		}
	}
	return nil, nil
}

// CheckIn records a check-in for ticketID on the given check-in list.
func (c *Client) CheckIn(ctx context.Context, checkinList, ticketID string) error {
	checkinList = strings.TrimSpace(checkinList)
	if checkinList == "" || strings.TrimSpace(ticketID) == "" {
		return fmt.Errorf("%w: list and ticket are required", ErrInvalidCheckin)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(ticketID), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: ticket id %q: %v", ErrInvalidCheckin, ticketID, err)
	}
	body, err := json.Marshal(map[string]interface{}{
		"checkin": map[string]int64{"ticket_id": id},
	})
	if err != nil {
		return fmt.Errorf("marshal check-in: %w", err)
	}
	endpoint := fmt.Sprintf("%s/checkin_lists/%s/checkins", c.checkinBaseURL, url.PathEscape(checkinList))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build check-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return c.do(req, "check in", nil)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Token token="+c.token)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) do(req *http.Request, op string, dest interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tito %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("tito %s: decode response: %w", op, err)
	}
	return nil
}
