package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/queue"
)

// QueueTransport exchanges batches through the Redis work queue. Each
// session owns its own Redis connection.
type QueueTransport struct {
	opts   queue.RedisOptions
	dial   func(queue.RedisOptions) (queue.Client, error)
	logger *slog.Logger
}

// NewQueueTransport creates a transport that connects with opts.
func NewQueueTransport(opts queue.RedisOptions, logger *slog.Logger) *QueueTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &QueueTransport{
		opts: opts,
		dial: func(o queue.RedisOptions) (queue.Client, error) {
			return queue.NewRedisClient(o)
		},
		logger: logger,
	}
}

// Open implements Transport.
func (t *QueueTransport) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := t.dial(t.opts)
	if err != nil {
		return nil, err
	}
	return &queueSession{client: client, logger: t.logger}, nil
}

type queueSession struct {
	client queue.Client
	logger *slog.Logger
}

func (s *queueSession) Close() error {
	return s.client.Close()
}

// Exchange subscribes to the stream's results channel, then pushes every
// candidate and collects results until all requests are answered.
func (s *queueSession) Exchange(ctx context.Context, req BatchRequest, sink func(Verdict)) error {
	g, gctx := errgroup.WithContext(ctx)

	results, err := s.client.Subscribe(gctx, req.StreamID)
	if err != nil {
		return err
	}

	sc := trace.SpanContextFromContext(ctx)
	var traceID, spanID string
	if sc.IsValid() {
		traceID = sc.TraceID().String()
		spanID = sc.SpanID().String()
	}

	g.Go(func() error {
		for i := range req.Candidates {
			data, err := json.Marshal(req.Candidates[i])
			if err != nil {
				return fmt.Errorf("failed to encode candidate %s: %w", req.Candidates[i].InstanceID, err)
			}
			item := queue.WorkItem{
				StreamID:           req.StreamID,
				RequestID:          req.RequestIDs[i],
				Index:              i,
				Total:              req.Len(),
				Token:              req.Token,
				ApplicationName:    req.Project.ApplicationName,
				ApplicationVersion: req.Project.ApplicationVersion,
				CandidateJSON:      string(data),
				TraceID:            traceID,
				SpanID:             spanID,
				SubmittedAt:        time.Now().UnixMilli(),
			}
			if err := s.client.Push(gctx, item); err != nil {
				return err
			}
		}
		s.logger.Debug("pushed triage requests", "stream_id", req.StreamID, "count", req.Len())
		return nil
	})

	g.Go(func() error {
		return s.collect(gctx, results, &req, sink)
	})

	return g.Wait()
}

func (s *queueSession) collect(ctx context.Context, results <-chan queue.Result, req *BatchRequest, sink func(Verdict)) error {
	const op = "queueSession.collect"

	pending := make(map[string]struct{}, req.Len())
	for _, id := range req.RequestIDs {
		pending[id] = struct{}{}
	}

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-results:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return fmt.Errorf("results channel closed with %d requests unanswered", len(pending))
			}

			v := resultVerdict(r)
			if v.Status == StatusInternalError {
				return aviator.NewTechnicalError(op, fmt.Errorf("internal server error: %s", v.StatusMessage))
			}

			delete(pending, v.RequestID)
			sink(v)
		}
	}
	return nil
}

// resultVerdict converts a queue result. Worker errors and undecodable
// payloads become FAILED verdicts.
func resultVerdict(r queue.Result) Verdict {
	if r.HasError() {
		return Verdict{RequestID: r.RequestID, Status: StatusFailed, StatusMessage: r.Error, Outcome: OutcomeUnsure}
	}

	var v Verdict
	if err := json.Unmarshal([]byte(r.VerdictJSON), &v); err != nil {
		return Verdict{
			RequestID:     r.RequestID,
			Status:        StatusFailed,
			StatusMessage: fmt.Sprintf("undecodable verdict: %v", err),
			Outcome:       OutcomeUnsure,
		}
	}
	v.RequestID = r.RequestID
	if v.Outcome == "" {
		v.Outcome = OutcomeUnsure
	}
	return v
}
