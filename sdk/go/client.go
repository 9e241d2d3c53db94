package cablechecksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal cablecheck HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://127.0.0.1:8000/api.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 2 * time.Minute,
	}
}

// ValidationItem is the verdict for one field.
type ValidationItem struct {
	Field    string `json:"field"`
	Status   string `json:"status"`
	Expected string `json:"expected,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// Interaction is one recorded human answer.
type Interaction struct {
	Field        string `json:"field"`
	UserResponse string `json:"user_response"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// Result is the response of the validate endpoints.
type Result struct {
	RunID             string           `json:"run_id,omitempty"`
	UserInput         string           `json:"user_input"`
	Route             string           `json:"route"`
	DesignID          string           `json:"design_id,omitempty"`
	Attributes        map[string]any   `json:"attributes"`
	MissingAttributes []string         `json:"missing_attributes"`
	Validation        []ValidationItem `json:"validation"`
	Reasoning         *string          `json:"reasoning,omitempty"`
	Confidence        *float64         `json:"confidence,omitempty"`
	HITLMode          bool             `json:"hitl_mode"`
	HITLRequired      bool             `json:"hitl_required"`
	Interactions      []Interaction    `json:"hitl_interactions"`
}

// Design is a stored reference design. Nil fields are unknown.
type Design struct {
	ID                  string   `json:"id"`
	Standard            *string  `json:"standard"`
	Voltage             *string  `json:"voltage"`
	ConductorMaterial   *string  `json:"conductor_material"`
	ConductorClass      *string  `json:"conductor_class"`
	CSA                 *float64 `json:"csa"`
	InsulationMaterial  *string  `json:"insulation_material"`
	InsulationThickness *float64 `json:"insulation_thickness"`
	CreatedAt           string   `json:"created_at,omitempty"`
	UpdatedAt           string   `json:"updated_at,omitempty"`
}

// Run is a recorded validation run.
type Run struct {
	ID                string           `json:"id"`
	Kind              string           `json:"kind"`
	UserInput         string           `json:"user_input"`
	Route             string           `json:"route"`
	DesignID          string           `json:"design_id"`
	Attributes        map[string]any   `json:"attributes"`
	MissingAttributes []string         `json:"missing_attributes"`
	Validation        []ValidationItem `json:"validation"`
	Reasoning         *string          `json:"reasoning"`
	Confidence        *float64         `json:"confidence"`
	HITLMode          bool             `json:"hitl_mode"`
	HITLRequired      bool             `json:"hitl_required"`
	Interactions      []Interaction    `json:"hitl_interactions"`
	CreatedAt         string           `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedDesigns is an offset page of designs.
type PaginatedDesigns struct {
	Items []Design `json:"items"`
	Total int      `json:"total"`
	Skip  int      `json:"skip"`
	Limit int      `json:"limit"`
}

// PaginatedRuns wraps run listings with a cursor.
type PaginatedRuns struct {
	Items      []Run  `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Validate runs a validation. With hitl set the result may report missing
// attributes to answer through Resume.
func (c *Client) Validate(ctx context.Context, input string, hitl bool) (Result, error) {
	body := map[string]any{
		"user_input": input,
		"hitl_mode":  hitl,
	}
	var resp Result
	err := c.do(ctx, http.MethodPost, "validations/validate", body, &resp)
	return resp, err
}

// Resume re-runs a validation with answers keyed by field name.
func (c *Client) Resume(ctx context.Context, input string, answers map[string]string) (Result, error) {
	if answers == nil {
		answers = map[string]string{}
	}
	body := map[string]any{
		"user_input": input,
		"responses":  answers,
	}
	var resp Result
	err := c.do(ctx, http.MethodPost, "validations/validate-with-responses", body, &resp)
	return resp, err
}

// Runs returns a page of recorded runs, newest first.
func (c *Client) Runs(ctx context.Context, limit int, cursor string) (PaginatedRuns, error) {
	var resp PaginatedRuns
	err := c.do(ctx, http.MethodGet, withQuery("validations", limit, cursor, nil), nil, &resp)
	return resp, err
}

// Run fetches a recorded run by id.
func (c *Client) Run(ctx context.Context, id string) (Run, error) {
	var resp Run
	err := c.do(ctx, http.MethodGet, "validations/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Designs lists stored designs.
func (c *Client) Designs(ctx context.Context, skip, limit int) (PaginatedDesigns, error) {
	q := url.Values{}
	q.Set("skip", fmt.Sprint(skip))
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp PaginatedDesigns
	err := c.do(ctx, http.MethodGet, "designs?"+q.Encode(), nil, &resp)
	return resp, err
}

// Design fetches one design.
func (c *Client) Design(ctx context.Context, id string) (Design, error) {
	var resp Design
	err := c.do(ctx, http.MethodGet, "designs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateDesign stores a new design.
func (c *Client) CreateDesign(ctx context.Context, d Design) (Design, error) {
	body := map[string]any{"id": d.ID}
	for k, v := range designFields(d) {
		if v != nil {
			body[k] = v
		}
	}
	var resp Design
	err := c.do(ctx, http.MethodPost, "designs", body, &resp)
	return resp, err
}

// UpdateDesign applies a partial update. A nil value in fields clears it.
func (c *Client) UpdateDesign(ctx context.Context, id string, fields map[string]any) (Design, error) {
	var resp Design
	err := c.do(ctx, http.MethodPut, "designs/"+url.PathEscape(id), fields, &resp)
	return resp, err
}

// DeleteDesign removes a design.
func (c *Client) DeleteDesign(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "designs/"+url.PathEscape(id), nil, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "", "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, optionally filtered by type.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor, evtType string) (PaginatedEvents, error) {
	var extra url.Values
	if evtType != "" {
		extra = url.Values{"type": {evtType}}
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", limit, cursor, extra), nil, &resp)
	return resp, err
}

func designFields(d Design) map[string]any {
	out := map[string]any{}
	put := func(k string, s *string) {
		if s != nil {
			out[k] = *s
		}
	}
	put("standard", d.Standard)
	put("voltage", d.Voltage)
	put("conductor_material", d.ConductorMaterial)
	put("conductor_class", d.ConductorClass)
	put("insulation_material", d.InsulationMaterial)
	if d.CSA != nil {
		out["csa"] = *d.CSA
	}
	if d.InsulationThickness != nil {
		out["insulation_thickness"] = *d.InsulationThickness
	}
	return out
}

func withQuery(endpoint string, limit int, cursor string, extra url.Values) string {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
