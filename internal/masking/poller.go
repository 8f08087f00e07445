// Package masking talks to the asynchronous masking service: it submits mask
// payloads and polls job status until a terminal state is reached.
package masking

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"snowflake-mask-report/pkg/types"
)

// DefaultPollInterval is the fixed wait between two status checks
const DefaultPollInterval = 5 * time.Second

// Poller drives a tracking id to a terminal job state.
type Poller struct {
	client      types.MaskingClient
	interval    time.Duration
	maxAttempts int // 0 polls until the job is terminal
	log         logrus.FieldLogger

	// sleep is injectable to make tests fast and deterministic.
	sleep func(ctx context.Context, d time.Duration) error
}

// PollerConfig configures a Poller. Zero values get defaults.
type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int
	Logger      logrus.FieldLogger
	Sleep       func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller over client
func NewPoller(client types.MaskingClient, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &Poller{
		client:      client,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		log:         cfg.Logger,
		sleep:       cfg.Sleep,
	}
}

// Await polls trackingID until the job succeeds or fails. A blank id resolves
// to an empty result set without contacting the service.
func (p *Poller) Await(ctx context.Context, trackingID string) ([]types.MaskedResult, error) {
	trackingID = strings.TrimSpace(trackingID)
	if trackingID == "" {
		return []types.MaskedResult{}, nil
	}

	log := p.log.WithField("tracking_id", trackingID)
	for attempt := 1; ; attempt++ {
		status, err := p.client.Status(ctx, trackingID)
		if err != nil {
			return nil, err
		}

		switch status.State {
		case types.JobSuccess:
			log.WithField("results", len(status.Results)).Debug("Masking job finished")
			if status.Results == nil {
				return []types.MaskedResult{}, nil
			}
			return status.Results, nil

		case types.JobFailed:
			msg := status.Message
			if msg == "" {
				msg = "Unknown error"
			}
			return nil, types.Errorf(types.KindPoll, "poll", "processing failed for tracking ID %s: %s", trackingID, msg)

		case types.JobPending, types.JobInProgress:
			if p.maxAttempts > 0 && attempt >= p.maxAttempts {
				return nil, types.Errorf(types.KindPoll, "poll", "tracking ID %s still %s after %d attempts", trackingID, status.Raw, attempt)
			}
			log.WithField("status", status.Raw).Debugf("Job not finished, checking again in %s", p.interval)
			if err := p.sleep(ctx, p.interval); err != nil {
				return nil, err
			}

		default:
			return nil, types.Errorf(types.KindPoll, "poll", "unexpected status '%s' for tracking ID %s", status.Raw, trackingID)
		}
	}
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
