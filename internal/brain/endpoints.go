package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/expr"
	"brain-alpha-lab/internal/observability"
)

// SubmitSimulation validates the expression locally, then creates a
// simulation job. The returned Job carries the handle to poll.
func (c *Client) SubmitSimulation(ctx context.Context, expression string, settings domain.SimulationSettings) (*domain.Job, error) {
	if err := expr.Validate(expression); err != nil {
		return nil, err
	}
	body := domain.NewSimulationRequest(expression, settings)
	resp, err := c.Do(ctx, http.MethodPost, "/simulations", body, nil, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, &RequestError{
			Operation:  "simulation submission",
			StatusCode: resp.StatusCode,
			Body:       truncateBody(resp.Body),
		}
	}
	handle := resp.Header.Get("Location")
	if handle == "" {
		return nil, &RequestError{
			Operation:  "simulation submission",
			StatusCode: resp.StatusCode,
			Body:       "response missing Location header",
		}
	}
	return domain.NewJob(stripBase(handle, c.baseURL)), nil
}

// SimulateAlpha runs a full simulation: submit, poll to a terminal
// state, then fetch the resulting alpha's details. A failed detail
// fetch does not fail the simulation; Details is left nil.
func (c *Client) SimulateAlpha(ctx context.Context, expression string, settings domain.SimulationSettings) (*domain.SimulationResult, error) {
	started := time.Now()
	job, err := c.SubmitSimulation(ctx, expression, settings)
	if err != nil {
		return nil, err
	}
	raw, err := c.PollJob(ctx, job, SimulationProfile)
	observability.RecordSimulation(string(job.Status), time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}

	result := &domain.SimulationResult{Expression: expression, Raw: raw}
	if err := json.Unmarshal(raw, &result.Job); err != nil {
		return nil, fmt.Errorf("decode simulation outcome: %w", err)
	}
	if result.Job.AlphaID != "" {
		details, err := c.GetAlphaDetails(ctx, result.Job.AlphaID)
		if err == nil {
			result.Details = details
		}
	}
	return result, nil
}

// GetAlphaDetails fetches the full alpha record, including in-sample
// metrics and check results.
func (c *Client) GetAlphaDetails(ctx context.Context, alphaID string) (*domain.AlphaDetails, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/alphas/"+alphaID, nil, nil, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{
			Operation:  "alpha details fetch",
			StatusCode: resp.StatusCode,
			Body:       truncateBody(resp.Body),
		}
	}
	var details domain.AlphaDetails
	if err := resp.JSON(&details); err != nil {
		return nil, fmt.Errorf("decode alpha %s: %w", alphaID, err)
	}
	return &details, nil
}

// DataField is one entry from the platform's data-field catalog.
type DataField struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Coverage    float64 `json:"coverage,omitempty"`
	UserCount   int     `json:"userCount,omitempty"`
	AlphaCount  int     `json:"alphaCount,omitempty"`
}

// Operator is one entry from the platform's operator catalog.
type Operator struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Scope       string `json:"scope,omitempty"`
	Definition  string `json:"definition,omitempty"`
	Description string `json:"description,omitempty"`
}

// DataFieldsQuery selects a slice of the data-field catalog.
type DataFieldsQuery struct {
	Dataset        string
	Region         string
	Universe       string
	Delay          int
	InstrumentType string
}

type pagedEnvelope struct {
	Count   int             `json:"count"`
	Results json.RawMessage `json:"results"`
}

// GetDataFields walks the paginated data-field catalog and returns
// every field matching the query.
func (c *Client) GetDataFields(ctx context.Context, q DataFieldsQuery) ([]DataField, error) {
	const pageSize = 50
	params := url.Values{}
	params.Set("dataset.id", q.Dataset)
	params.Set("delay", strconv.Itoa(q.Delay))
	params.Set("instrumentType", q.InstrumentType)
	params.Set("region", q.Region)
	params.Set("universe", q.Universe)
	params.Set("limit", strconv.Itoa(pageSize))

	var fields []DataField
	for offset := 0; ; offset += pageSize {
		params.Set("offset", strconv.Itoa(offset))
		resp, err := c.Do(ctx, http.MethodGet, "/data-fields", nil, params, true)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &RequestError{
				Operation:  "data-field listing",
				StatusCode: resp.StatusCode,
				Body:       truncateBody(resp.Body),
			}
		}
		var page pagedEnvelope
		if err := resp.JSON(&page); err != nil {
			return nil, fmt.Errorf("decode data-field page at offset %d: %w", offset, err)
		}
		var batch []DataField
		if err := json.Unmarshal(page.Results, &batch); err != nil {
			return nil, fmt.Errorf("decode data-field results at offset %d: %w", offset, err)
		}
		fields = append(fields, batch...)
		if len(batch) == 0 || offset+pageSize >= page.Count {
			return fields, nil
		}
	}
}

// GetOperators fetches the operator catalog. The endpoint has returned
// both a bare array and a results envelope over time, so both shapes
// are accepted.
func (c *Client) GetOperators(ctx context.Context) ([]Operator, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/operators", nil, nil, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{
			Operation:  "operator listing",
			StatusCode: resp.StatusCode,
			Body:       truncateBody(resp.Body),
		}
	}
	var ops []Operator
	if err := json.Unmarshal(resp.Body, &ops); err == nil {
		return ops, nil
	}
	var envelope pagedEnvelope
	if err := resp.JSON(&envelope); err != nil {
		return nil, fmt.Errorf("decode operator listing: %w", err)
	}
	if err := json.Unmarshal(envelope.Results, &ops); err != nil {
		return nil, fmt.Errorf("decode operator results: %w", err)
	}
	return ops, nil
}

// ListAlphasQuery selects a page of the caller's own alphas.
type ListAlphasQuery struct {
	Status string
	Limit  int
	Offset int
	Order  string
}

// AlphaPage is one page of the caller's alphas.
type AlphaPage struct {
	Count   int                   `json:"count"`
	Results []domain.AlphaDetails `json:"results"`
}

// ListAlphas fetches one page of the authenticated user's alphas.
func (c *Client) ListAlphas(ctx context.Context, q ListAlphasQuery) (*AlphaPage, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Order != "" {
		params.Set("order", q.Order)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 30
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(q.Offset))

	resp, err := c.Do(ctx, http.MethodGet, "/users/self/alphas", nil, params, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{
			Operation:  "alpha listing",
			StatusCode: resp.StatusCode,
			Body:       truncateBody(resp.Body),
		}
	}
	var page AlphaPage
	if err := resp.JSON(&page); err != nil {
		return nil, fmt.Errorf("decode alpha listing: %w", err)
	}
	return &page, nil
}

// AlphaProperties carries the mutable alpha fields. Nil fields are
// omitted from the PATCH body, so a zero value changes nothing.
type AlphaProperties struct {
	Name        *string
	Color       *string
	Tags        []string
	Description *string
}

// SetAlphaProperties updates an alpha's mutable properties. Only
// non-nil fields are sent; the description lives under the nested
// regular object on the wire.
func (c *Client) SetAlphaProperties(ctx context.Context, alphaID string, props AlphaProperties) error {
	body := map[string]any{}
	if props.Name != nil {
		body["name"] = *props.Name
	}
	if props.Color != nil {
		body["color"] = *props.Color
	}
	if props.Tags != nil {
		body["tags"] = props.Tags
	}
	if props.Description != nil {
		body["regular"] = map[string]any{"description": *props.Description}
	}
	if len(body) == 0 {
		return nil
	}
	resp, err := c.Do(ctx, http.MethodPatch, "/alphas/"+alphaID, body, nil, true)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &RequestError{
			Operation:  "alpha property update",
			StatusCode: resp.StatusCode,
			Body:       truncateBody(resp.Body),
		}
	}
	return nil
}

// SubmitAlpha submits an alpha to the competition pool and polls the
// submission checks to completion. The terminal check payload is
// returned on acceptance.
func (c *Client) SubmitAlpha(ctx context.Context, alphaID string) (json.RawMessage, error) {
	path := "/alphas/" + alphaID + "/submit"
	resp, err := c.Do(ctx, http.MethodPost, path, nil, nil, true)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK, http.StatusAccepted:
		// submission accepted for processing
	default:
		observability.RecordSubmission("rejected")
		return nil, &RequestError{
			Operation:  "alpha submission",
			StatusCode: resp.StatusCode,
			Body:       truncateBody(resp.Body),
		}
	}

	job := domain.NewJob(path)
	raw, err := c.pollSubmission(ctx, job)
	if err != nil {
		observability.RecordSubmission("failed")
		return nil, err
	}
	observability.RecordSubmission("ok")
	return raw, nil
}

// pollSubmission polls the submit endpoint until the checks finish.
// Unlike simulation jobs, a 204 here means "still processing" and 200
// with a body means done; the body shape is check results rather than
// a status object, so terminal detection differs from PollJob.
func (c *Client) pollSubmission(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	profile := SubmissionProfile
	attempt := 0
	for attempt < profile.MaxAttempts {
		resp, err := c.Do(ctx, http.MethodGet, job.Handle, nil, nil, false)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if _, ok := err.(*TransientError); !ok {
				return nil, err
			}
			attempt++
			observability.RecordPollAttempt()
			if serr := sleepCtx(ctx, profile.Interval); serr != nil {
				return nil, serr
			}
			continue
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := parseRetryAfter(resp.Header.Get("Retry-After"), profile.Interval)
			observability.RecordRateLimitWait(wait.Seconds())
			if serr := sleepCtx(ctx, wait); serr != nil {
				return nil, serr
			}
		case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusAccepted || len(resp.Body) == 0:
			attempt++
			observability.RecordPollAttempt()
			if serr := sleepCtx(ctx, profile.Interval); serr != nil {
				return nil, serr
			}
		case resp.StatusCode == http.StatusOK:
			job.Status = domain.JobComplete
			job.Result = resp.Body
			return resp.Body, nil
		default:
			job.Status = domain.JobFailed
			return nil, &JobFailedError{
				Handle:  job.Handle,
				Status:  domain.JobFailed,
				Message: fmt.Sprintf("status %d: %s", resp.StatusCode, truncateBody(resp.Body)),
			}
		}
	}
	job.Status = domain.JobTimeout
	return nil, &PollTimeoutError{Handle: job.Handle, Attempts: profile.MaxAttempts}
}

// stripBase turns an absolute job URL into a client-relative path so
// the polling requests go through the same base URL as everything
// else.
func stripBase(handle, base string) string {
	if len(handle) > len(base) && handle[:len(base)] == base {
		return handle[len(base):]
	}
	return handle
}
