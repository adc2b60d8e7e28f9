package brain

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/observability"
)

// PollProfile bounds a polling loop. Attempts count sleeps taken while
// the job is non-terminal; server-directed rate-limit waits are free.
type PollProfile struct {
	MaxAttempts int
	Interval    time.Duration
}

// SimulationProfile polls simulations: up to five minutes.
var SimulationProfile = PollProfile{MaxAttempts: 60, Interval: 5 * time.Second}

// SubmissionProfile polls submissions, which run longer checks.
var SubmissionProfile = PollProfile{MaxAttempts: 30, Interval: 10 * time.Second}

// PollJob polls job.Handle until the remote job reaches a terminal
// state or the profile's budget runs out. The job's Status and Result
// are updated in place; on success the terminal response body is
// returned.
//
// Non-terminal observations all consume one attempt: transport errors,
// 202/204 processing responses, empty or unparsable bodies, and
// parseable non-terminal statuses. A 429 waits the server-indicated
// interval without consuming an attempt. FAILED and ERROR return
// *JobFailedError; budget exhaustion marks the job TIMEOUT and returns
// *PollTimeoutError.
func (c *Client) PollJob(ctx context.Context, job *domain.Job, profile PollProfile) (json.RawMessage, error) {
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
			log.Printf("[brain] poll %s: %v", job.Handle, err)
			attempt++
			observability.RecordPollAttempt()
			if serr := sleepCtx(ctx, profile.Interval); serr != nil {
				return nil, serr
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := parseRetryAfter(resp.Header.Get("Retry-After"), profile.Interval)
			observability.RecordRateLimitWait(wait.Seconds())
			if serr := sleepCtx(ctx, wait); serr != nil {
				return nil, serr
			}
			continue
		}

		pending := resp.StatusCode == http.StatusAccepted ||
			resp.StatusCode == http.StatusNoContent ||
			len(resp.Body) == 0
		if !pending && resp.StatusCode == http.StatusOK {
			var status domain.SimulationStatus
			if err := json.Unmarshal(resp.Body, &status); err != nil || status.Status == "" {
				pending = true
			} else {
				switch status.Status {
				case domain.JobComplete:
					job.Status = domain.JobComplete
					job.Result = resp.Body
					return resp.Body, nil
				case domain.JobFailed, domain.JobError:
					job.Status = status.Status
					job.Result = resp.Body
					return nil, &JobFailedError{
						Handle:  job.Handle,
						Status:  job.Status,
						Message: status.Message,
					}
				default:
					job.Status = domain.JobRunning
				}
			}
		} else if !pending {
			// Unexpected status: treat as a non-terminal observation
			// rather than aborting the whole job.
			log.Printf("[brain] poll %s: unexpected status %d", job.Handle, resp.StatusCode)
		}

		attempt++
		observability.RecordPollAttempt()
		if serr := sleepCtx(ctx, profile.Interval); serr != nil {
			return nil, serr
		}
	}

	job.Status = domain.JobTimeout
	return nil, &PollTimeoutError{Handle: job.Handle, Attempts: profile.MaxAttempts}
}
