package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mercator-hq/relay/pkg/clock"
	"mercator-hq/relay/pkg/configreader"
	"mercator-hq/relay/pkg/networkusage"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/transport"
	"mercator-hq/relay/pkg/transport/status"
	"mercator-hq/relay/pkg/workerpool"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Options configures a Service.
type Options struct {
	// Config supplies the relay flag snapshot. Required.
	Config *configreader.Reader[Config]

	// Repository is the admission and audit gate. Defaults to
	// networkusage.NoOp.
	Repository networkusage.Repository

	// Fetcher performs upstream requests. Required.
	Fetcher *Fetcher

	// Executor runs per-call work. Defaults to running inline.
	Executor workerpool.Executor

	Clock   clock.Clock
	Metrics Metrics

	// Tracer starts one server span per call. Defaults to a noop tracer.
	Tracer trace.Tracer
}

// Service relays downloads.
type Service struct {
	config   *configreader.Reader[Config]
	repo     networkusage.Repository
	fetcher  *Fetcher
	executor workerpool.Executor
	clock    clock.Clock
	metrics  Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewService creates a relay service.
func NewService(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config reader cannot be nil")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if opts.Repository == nil {
		opts.Repository = networkusage.NoOp{}
	}
	if opts.Executor == nil {
		opts.Executor = workerpool.Inline
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Metrics == nil {
		opts.Metrics = noMetrics{}
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Service{
		config:   opts.Config,
		repo:     opts.Repository,
		fetcher:  opts.Fetcher,
		executor: opts.Executor,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		logger:   slog.Default().With("component", "relay"),
	}, nil
}

// Handler adapts the service to the transport server.
func (s *Service) Handler() transport.Handler {
	return transport.HandlerFunc(func(ctx context.Context, req *transport.DownloadRequest, stream *transport.ServerStream) {
		s.Download(ctx, req, stream)
	})
}

// Download validates req and, if admitted, dispatches the fetch onto the
// executor. It does not wait for the call to finish. Rejections are
// reported on stream before Download returns.
func (s *Service) Download(ctx context.Context, req *transport.DownloadRequest, stream ResponseStream) {
	c := s.newCall(ctx, req, stream)
	c.logger.Info("download requested")
	s.metrics.CallStarted()

	if !c.validate() {
		return
	}
	s.executor.Execute(c.fetchAndStream)
}

func (s *Service) newCall(ctx context.Context, req *transport.DownloadRequest, stream ResponseStream) *call {
	ctx = logging.WithURL(logging.WithCallID(ctx, req.CallID), req.URL)
	ctx, span := s.tracer.Start(tracing.Extract(ctx, req.Headers), "relay.Download",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(tracing.CallAttributes(req.CallID, req.URL)...),
	)
	c := &call{
		svc:     s,
		ctx:     ctx,
		req:     req,
		stream:  stream,
		cfg:     s.config.GetConfig(),
		key:     networkusage.HTTPKey(req.URL),
		logger:  logging.FromContext(ctx, s.logger),
		span:    span,
		started: s.clock.Now(),
	}
	c.state.Store(int32(StateReceived))
	return c
}

// validate applies the HTTPS rule and the policy gate. It reports false
// after rejecting the call.
func (c *call) validate() bool {
	c.setState(StateValidating)
	url := c.req.URL

	if !strings.HasPrefix(url, "https://") {
		c.logger.Warn("rejected non HTTPS url request")
		c.reject(status.Newf(status.InvalidArgument, "Rejecting non HTTPS url: '%s'", url))
		return false
	}

	repo := c.svc.repo
	if !repo.IsKnownConnection(networkusage.ConnectionTypeHTTP, c.key) {
		c.logger.Info("network usage log unrecognized HTTPS request")
	}
	if repo.ShouldRejectRequest(networkusage.ConnectionTypeHTTP, c.key) {
		rejection := networkusage.UnrecognizedRequestForURL(url)
		c.logger.Warn("rejected unknown HTTPS request", "error", rejection)

		st := status.New(status.InvalidArgument, rejection.Error())
		detailed, err := st.WithDetails(UnrecognizedURL{URL: url})
		if err != nil {
			c.logger.Error("failed to attach rejection detail", "error", err)
		} else {
			st = detailed
		}
		c.reject(st)
		return false
	}
	return true
}

func (c *call) reject(st *status.Status) {
	if err := c.stream.Fail(st.Err()); err != nil && !errors.Is(err, transport.ErrAlreadyTerminated) {
		c.logger.Error("failed to send rejection", "error", err)
	}
	c.finishOnce.Do(func() {
		c.setState(StateRejected)
		c.svc.metrics.CallFinished(StateRejected, c.mode, 0, c.svc.clock.Now().Sub(c.started))
		tracing.SetOutcome(c.span, StateRejected.String(), "", 0)
		c.span.SetStatus(codes.Error, st.Message)
		c.span.End()
	})
}
