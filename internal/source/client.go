// Package source is the client for the job search API: the paginated
// search list, the per-item detail endpoint and the employer endpoint.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jonathan/job-harvester/internal/jobs"
	"github.com/jonathan/job-harvester/internal/schemas"
)

// Endpoint names used in errors and logs.
const (
	EndpointList     = "list"
	EndpointDetail   = "detail"
	EndpointEmployer = "employer"
)

// Fetcher performs a GET and returns a JSON body. *fetch.Session implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, query url.Values, headers http.Header) (json.RawMessage, error)
}

// Endpoints are the base URLs of the three API calls.
type Endpoints struct {
	ListURL    string
	DetailURL  string
	CompanyURL string
}

// DefaultEndpoints returns the 104.com.tw endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		ListURL:    "https://www.104.com.tw/jobs/search/list",
		DetailURL:  "https://www.104.com.tw/job/ajax/content",
		CompanyURL: "https://www.104.com.tw/company/ajax/content",
	}
}

// SearchParams are the fixed search-list query parameters.
type SearchParams struct {
	Role      string
	KeywordOp string
	Keyword   string
	Order     string
	Asc       string
	Mode      string
	SourceTag string
}

// DefaultSearchParams returns newest-first list-mode search parameters.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Role:      "0",
		KeywordOp: "7",
		Order:     "15",
		Asc:       "0",
		Mode:      "l",
		SourceTag: "2018indexpoc",
	}
}

// DefaultDetailHeaders are sent on detail requests in place of the session's
// search-page Referer.
func DefaultDetailHeaders() http.Header {
	return http.Header{
		"Accept":  {"application/json, text/plain, */*"},
		"Referer": {"https://www.104.com.tw/"},
	}
}

// Options configures a Client.
type Options struct {
	Endpoints     Endpoints
	Params        SearchParams
	DetailHeaders http.Header
}

// DefaultOptions returns the 104.com.tw configuration.
func DefaultOptions() Options {
	return Options{
		Endpoints:     DefaultEndpoints(),
		Params:        DefaultSearchParams(),
		DetailHeaders: DefaultDetailHeaders(),
	}
}

// Client calls the search API through a Fetcher and validates every response.
type Client struct {
	fetcher       Fetcher
	schemas       *schemas.Set
	endpoints     Endpoints
	params        SearchParams
	detailHeaders http.Header
}

// NewClient creates a Client.
func NewClient(fetcher Fetcher, opts Options) (*Client, error) {
	set, err := schemas.LoadSet()
	if err != nil {
		return nil, fmt.Errorf("failed to load response schemas: %w", err)
	}
	return &Client{
		fetcher:       fetcher,
		schemas:       set,
		endpoints:     opts.Endpoints,
		params:        opts.Params,
		detailHeaders: opts.DetailHeaders,
	}, nil
}

// Page is one page of the search list.
type Page struct {
	Items []map[string]json.RawMessage
	// TotalPage is the page count reported by the API, or 0 when absent.
	TotalPage int
}

type listResponse struct {
	Data struct {
		List      []map[string]json.RawMessage `json:"list"`
		TotalPage json.RawMessage              `json:"totalPage"`
	} `json:"data"`
}

// SearchPage fetches one page of postings for a task. Pages are 1-based.
func (c *Client) SearchPage(ctx context.Context, task jobs.FetchTask, page int) (*Page, error) {
	query := url.Values{
		"ro":        {c.params.Role},
		"kwop":      {c.params.KeywordOp},
		"keyword":   {c.params.Keyword},
		"order":     {c.params.Order},
		"asc":       {c.params.Asc},
		"page":      {strconv.Itoa(page)},
		"mode":      {c.params.Mode},
		"jobsource": {c.params.SourceTag},
		"area":      {task.Region.Code},
		"jobcat":    {task.Category.Code},
	}

	body, err := c.fetcher.Fetch(ctx, c.endpoints.ListURL, query, nil)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := c.decode(EndpointList, c.endpoints.ListURL, c.schemas.SearchList, body, &resp); err != nil {
		return nil, err
	}
	return &Page{Items: resp.Data.List, TotalPage: intOrZero(resp.Data.TotalPage)}, nil
}

type detailResponse struct {
	Data struct {
		Condition json.RawMessage `json:"condition"`
		JobDetail struct {
			JobCategory json.RawMessage `json:"jobCategory"`
		} `json:"jobDetail"`
		Header struct {
			CustURL string `json:"custUrl"`
		} `json:"header"`
	} `json:"data"`
}

// JobDetail fetches the detail enrichment of one posting.
func (c *Client) JobDetail(ctx context.Context, code string) (*jobs.JobDetail, error) {
	target := join(c.endpoints.DetailURL, code)
	body, err := c.fetcher.Fetch(ctx, target, nil, c.detailHeaders)
	if err != nil {
		return nil, err
	}

	var resp detailResponse
	if err := c.decode(EndpointDetail, target, c.schemas.JobDetail, body, &resp); err != nil {
		return nil, err
	}
	return &jobs.JobDetail{
		Condition:   nonNull(resp.Data.Condition),
		JobCategory: nonNull(resp.Data.JobDetail.JobCategory),
		CustURL:     strings.TrimSpace(resp.Data.Header.CustURL),
	}, nil
}

type employerResponse struct {
	Data struct {
		EmpNo   json.RawMessage `json:"empNo"`
		Capital json.RawMessage `json:"capital"`
	} `json:"data"`
}

// Employer fetches the employer profile for an employer code.
func (c *Client) Employer(ctx context.Context, employerCode string) (*jobs.EmployerProfile, error) {
	target := join(c.endpoints.CompanyURL, employerCode)
	body, err := c.fetcher.Fetch(ctx, target, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp employerResponse
	if err := c.decode(EndpointEmployer, target, c.schemas.Employer, body, &resp); err != nil {
		return nil, err
	}
	return &jobs.EmployerProfile{
		Employees: nonNull(resp.Data.EmpNo),
		Capital:   nonNull(resp.Data.Capital),
	}, nil
}

func (c *Client) decode(endpoint, target string, schema *schemas.Schema, body json.RawMessage, v any) error {
	if err := schema.Validate(body); err != nil {
		return &MalformedResponseError{Endpoint: endpoint, URL: target, Cause: err}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &MalformedResponseError{Endpoint: endpoint, URL: target, Cause: err}
	}
	return nil
}

// IsMalformed reports whether err is a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

func join(base, code string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(code)
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func intOrZero(raw json.RawMessage) int {
	raw = nonNull(raw)
	if raw == nil {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return 0
}
