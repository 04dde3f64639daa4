package fleetapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/greenfleet/pkg/log"
	"github.com/cuemby/greenfleet/pkg/metrics"
	"github.com/rs/zerolog"
	"resty.dev/v3"
)

// DefaultTimeout bounds a single fleet-manager round-trip
const DefaultTimeout = 30 * time.Second

// ClientConfig configures the HTTP client
type ClientConfig struct {
	Endpoint  string
	Token     string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the fleet manager over JSON/HTTP. It never retries on its
// own; retry policy belongs to the caller, which knows which calls are safe
// to repeat.
type Client struct {
	client *resty.Client
	logger zerolog.Logger
}

var _ API = (*Client)(nil)

// NewClient creates a fleet-manager client
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &Client{
		client: client,
		logger: log.WithComponent("fleetapi"),
	}
}

// Close releases the underlying HTTP client
func (c *Client) Close() error {
	return c.client.Close()
}

type call struct {
	op         string
	method     string
	path       string
	pathParams map[string]string
	query      url.Values
	body       any
	result     any
}

func (c *Client) do(ctx context.Context, r call) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.APIRequestDuration, r.op)

	apiErr := &APIError{}
	req := c.client.R().
		SetContext(ctx).
		SetError(apiErr)
	if r.pathParams != nil {
		req.SetPathParams(r.pathParams)
	}
	if r.query != nil {
		req.SetQueryParamsFromValues(r.query)
	}
	if r.body != nil {
		req.SetBody(r.body)
	}
	if r.result != nil {
		req.SetResult(r.result)
	}

	resp, err := req.Execute(r.method, r.path)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(r.op, "error").Inc()
		c.logger.Debug().Err(err).Str("op", r.op).Msg("Request failed")
		return fmt.Errorf("%s: %w", r.op, err)
	}

	status := resp.StatusCode()
	metrics.APIRequestsTotal.WithLabelValues(r.op, strconv.Itoa(status)).Inc()

	if resp.IsError() {
		apiErr.StatusCode = status
		if apiErr.Code == "" {
			apiErr.Code = codeForStatus(status)
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(resp.String())
		}
		c.logger.Debug().
			Str("op", r.op).
			Int("status", status).
			Str("code", apiErr.Code).
			Msg("Fleet manager returned error")
		return fmt.Errorf("%s: %w", r.op, apiErr)
	}

	return nil
}

// CreateFleet creates a fleet
func (c *Client) CreateFleet(ctx context.Context, in *CreateFleetInput) error {
	return c.do(ctx, call{
		op:     "CreateFleet",
		method: http.MethodPost,
		path:   "/fleets",
		body:   in,
	})
}

// DescribeFleets returns one page of fleets
func (c *Client) DescribeFleets(ctx context.Context, in *DescribeFleetsInput) (*DescribeFleetsOutput, error) {
	query := url.Values{}
	if len(in.FleetNames) > 0 {
		query.Set("names", strings.Join(in.FleetNames, ","))
	}
	if in.NextToken != "" {
		query.Set("next_token", in.NextToken)
	}
	if in.MaxRecords > 0 {
		query.Set("max_records", strconv.Itoa(in.MaxRecords))
	}

	out := &DescribeFleetsOutput{}
	err := c.do(ctx, call{
		op:     "DescribeFleets",
		method: http.MethodGet,
		path:   "/fleets",
		query:  query,
		result: out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateFleet applies a partial update
func (c *Client) UpdateFleet(ctx context.Context, in *UpdateFleetInput) error {
	return c.do(ctx, call{
		op:         "UpdateFleet",
		method:     http.MethodPatch,
		path:       "/fleets/{name}",
		pathParams: map[string]string{"name": in.FleetName},
		body:       in,
	})
}

// DeleteFleet deletes a fleet
func (c *Client) DeleteFleet(ctx context.Context, in *DeleteFleetInput) error {
	var query url.Values
	if in.ForceDelete {
		query = url.Values{"force": []string{"true"}}
	}
	return c.do(ctx, call{
		op:         "DeleteFleet",
		method:     http.MethodDelete,
		path:       "/fleets/{name}",
		pathParams: map[string]string{"name": in.FleetName},
		query:      query,
	})
}

// TerminateMember terminates one member
func (c *Client) TerminateMember(ctx context.Context, in *TerminateMemberInput) error {
	return c.do(ctx, call{
		op:         "TerminateMember",
		method:     http.MethodPost,
		path:       "/members/{id}/terminate",
		pathParams: map[string]string{"id": in.MemberId},
		body:       in,
	})
}

// PutScalingPolicy attaches a scaling policy to a fleet
func (c *Client) PutScalingPolicy(ctx context.Context, in *PutScalingPolicyInput) error {
	return c.do(ctx, call{
		op:         "PutScalingPolicy",
		method:     http.MethodPost,
		path:       "/fleets/{name}/policies",
		pathParams: map[string]string{"name": in.FleetName},
		body:       in,
	})
}

// CreateLaunchSpec creates a launch spec
func (c *Client) CreateLaunchSpec(ctx context.Context, in *CreateLaunchSpecInput) (*CreateLaunchSpecOutput, error) {
	out := &CreateLaunchSpecOutput{}
	err := c.do(ctx, call{
		op:     "CreateLaunchSpec",
		method: http.MethodPost,
		path:   "/launch-specs",
		body:   in,
		result: out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DescribeLaunchSpecVersions returns the selected versions of a launch spec
func (c *Client) DescribeLaunchSpecVersions(ctx context.Context, in *DescribeLaunchSpecVersionsInput) (*DescribeLaunchSpecVersionsOutput, error) {
	query := url.Values{}
	for _, v := range in.Versions {
		query.Add("version", v)
	}

	out := &DescribeLaunchSpecVersionsOutput{}
	err := c.do(ctx, call{
		op:         "DescribeLaunchSpecVersions",
		method:     http.MethodGet,
		path:       "/launch-specs/{name}/versions",
		pathParams: map[string]string{"name": in.LaunchSpecName},
		query:      query,
		result:     out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteLaunchSpec deletes a launch spec
func (c *Client) DeleteLaunchSpec(ctx context.Context, in *DeleteLaunchSpecInput) error {
	return c.do(ctx, call{
		op:         "DeleteLaunchSpec",
		method:     http.MethodDelete,
		path:       "/launch-specs/{name}",
		pathParams: map[string]string{"name": in.LaunchSpecName},
	})
}
