// Package triage exchanges a batch of candidate findings with the remote
// triage service and correlates the verdicts back to findings.
//
// A Coordinator owns the batch-level policy: request ids, the overall
// timeout, cancellation and error classification. Transports move the
// messages; GRPCTransport talks to the service directly and QueueTransport
// goes through the Redis work queue.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/finding"
)

// DefaultTimeout bounds a batch exchange when none is configured.
const DefaultTimeout = 8*time.Hour + 20*time.Minute

// Transport opens sessions with the triage service.
type Transport interface {
	Open(ctx context.Context) (Session, error)
}

// Session carries one batch exchange. Exchange sends the request and calls
// sink for every verdict received; it returns once every request has been
// answered or the service ends the stream. sink is never called
// concurrently.
type Session interface {
	Exchange(ctx context.Context, req BatchRequest, sink func(Verdict)) error
	Close() error
}

// Coordinator submits batches through a Transport.
type Coordinator struct {
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger
	newID     func() string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the overall batch timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator creates a Coordinator over transport.
func NewCoordinator(transport Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		transport: transport,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the configured batch timeout.
func (c *Coordinator) Timeout() time.Duration {
	return c.timeout
}

// Submit sends batch as one logical request and returns the verdicts keyed
// by instance id. An empty batch returns an empty map without contacting
// the service.
//
// On timeout the error is KindTechnical wrapping aviator.ErrAuditTimeout; on
// cancellation of ctx it is KindInterrupted wrapping ctx.Err(). In both
// cases no verdicts are returned.
func (c *Coordinator) Submit(ctx context.Context, batch []finding.Candidate, meta ProjectMetadata, token string) (map[string]Verdict, error) {
	const op = "Coordinator.Submit"

	if len(batch) == 0 {
		c.logger.Info("no issues to triage")
		return map[string]Verdict{}, nil
	}

	req := BatchRequest{
		StreamID:   c.newID(),
		Project:    meta,
		Token:      token,
		Candidates: batch,
		RequestIDs: make([]string, len(batch)),
	}
	col := newCollector(c.logger)
	for i := range batch {
		id := c.newID()
		req.RequestIDs[i] = id
		col.expect(id, batch[i].InstanceID)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Info("starting triage",
		"stream_id", req.StreamID,
		"issues", len(batch),
		"timeout", c.timeout)

	session, err := c.transport.Open(runCtx)
	if err != nil {
		return nil, c.fail(op, ctx, runCtx, fmt.Errorf("failed to open triage session: %w", err))
	}
	defer aviator.CloseWithLog(session, c.logger, "triage session")

	if err := session.Exchange(runCtx, req, col.add); err != nil {
		return nil, c.fail(op, ctx, runCtx, err)
	}

	verdicts := col.byInstance()
	c.logger.Info("triage completed",
		"stream_id", req.StreamID,
		"requested", len(batch),
		"answered", len(verdicts))
	return verdicts, nil
}

// fail turns an exchange error into the right error kind. Context state is
// checked first because gRPC surfaces cancellation as a status error.
func (c *Coordinator) fail(op string, parent, run context.Context, err error) error {
	if perr := parent.Err(); perr != nil {
		c.logger.Warn("triage interrupted", "error", perr)
		return aviator.NewInterruptedError(op, perr)
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		c.logger.Error("triage timed out", "timeout", c.timeout)
		return aviator.NewTechnicalError(op, aviator.ErrAuditTimeout).
			WithContext(map[string]any{"timeout": c.timeout.String()})
	}
	c.logger.Error("triage failed", "error", err)
	return classify(op, err)
}

// classify maps transport errors onto error kinds. AuditErrors pass through;
// gRPC statuses the caller can act on become KindSimple.
func classify(op string, err error) error {
	var ae *aviator.AuditError
	if errors.As(err, &ae) {
		return err
	}

	if st, ok := status.FromError(err); ok && isSimpleCode(st.Code()) {
		return aviator.NewSimpleError(op, fmt.Errorf("%w: %s", aviator.ErrRemoteRejected, describe(st))).
			WithContext(map[string]any{"code": st.Code().String()})
	}
	return aviator.NewTechnicalError(op, err)
}

func isSimpleCode(code codes.Code) bool {
	switch code {
	case codes.InvalidArgument,
		codes.NotFound,
		codes.AlreadyExists,
		codes.FailedPrecondition,
		codes.PermissionDenied,
		codes.Unauthenticated,
		codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func describe(st *status.Status) string {
	msg := st.Message()
	if msg == "" {
		msg = "no additional details were provided by the server"
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return "authentication failed, the token is invalid or expired: " + msg
	case codes.PermissionDenied:
		return "permission denied: " + msg
	default:
		return msg
	}
}

// collector accumulates verdicts keyed by request id.
type collector struct {
	known    map[string]string
	verdicts sync.Map
	logger   *slog.Logger
}

func newCollector(logger *slog.Logger) *collector {
	return &collector{known: make(map[string]string), logger: logger}
}

func (c *collector) expect(requestID, instanceID string) {
	c.known[requestID] = instanceID
}

func (c *collector) add(v Verdict) {
	instanceID, ok := c.known[v.RequestID]
	if !ok {
		c.logger.Warn("dropping verdict for unknown request", "request_id", v.RequestID)
		return
	}
	v.InstanceID = instanceID
	c.verdicts.Store(v.RequestID, v)
}

func (c *collector) byInstance() map[string]Verdict {
	out := make(map[string]Verdict, len(c.known))
	c.verdicts.Range(func(_, value any) bool {
		v := value.(Verdict)
		out[v.InstanceID] = v
		return true
	})
	return out
}
