package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/home-dashboard/httping/internal/models"
	"github.com/home-dashboard/httping/internal/tracing"
)

// maxBodyBytes caps how much of a response is searched for the expected text.
const maxBodyBytes = 1 << 20

// Stage names the step at which a probe failed.
type Stage string

const (
	StageRequest Stage = "request"
	StageConnect Stage = "transport"
	StageStatus  Stage = "status"
	StageBody    Stage = "body"
	StageContent Stage = "content"
)

// ProbeError describes a failed probe and the stage it failed at.
type ProbeError struct {
	Stage Stage
	Err   error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Stage, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one probe.
type Result struct {
	Latency models.Latency
	Elapsed time.Duration
	Status  int
	Err     error
}

// Executor performs HTTP probes. Every probe opens a fresh connection so the
// measured latency includes connection setup.
type Executor struct {
	client *http.Client
	logger *zap.Logger
}

// NewExecutor creates an executor whose transport is traced.
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := &http.Transport{
		Proxy:              http.ProxyFromEnvironment,
		DisableKeepAlives:  true,
		DisableCompression: true,
	}
	return &Executor{
		client: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		logger: logger,
	}
}

// Probe measures t and returns its latency or a sentinel.
func (e *Executor) Probe(ctx context.Context, t models.Target) models.Latency {
	return e.Execute(ctx, t).Latency
}

// Execute measures t with a deadline of the target's probe timeout.
//
// Transport failures and deadline expiry yield LatencyTimeout. A non-2xx
// status yields LatencyError as soon as the headers arrive, without reading
// the body; so does a body missing the expected text. Otherwise
// the latency is the elapsed time until the body was read.
func (e *Executor) Execute(ctx context.Context, t models.Target) Result {
	ctx, span := tracing.GetTracer("httping/probe").Start(ctx, "probe.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("target.id", t.InternalName),
		attribute.String("target.url", t.URL),
	)

	ctx, cancel := context.WithTimeout(ctx, t.ProbeTimeout())
	defer cancel()

	res := e.execute(ctx, t)

	span.SetAttributes(
		attribute.Int("probe.latency_ms", int(res.Latency)),
		attribute.Int("http.status_code", res.Status),
	)
	if res.Err != nil {
		span.SetStatus(codes.Error, res.Err.Error())
		tracing.RecordError(ctx, res.Err)
		e.logger.Debug("probe failed",
			zap.String("target", t.InternalName),
			zap.Duration("elapsed", res.Elapsed),
			zap.Error(res.Err))
	}
	return res
}

func (e *Executor) execute(ctx context.Context, t models.Target) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return Result{Latency: models.LatencyTimeout, Err: &ProbeError{Stage: StageRequest, Err: err}}
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "httping/1.0")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return Result{Latency: models.LatencyTimeout, Elapsed: time.Since(start), Err: &ProbeError{Stage: StageConnect, Err: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			Latency: models.LatencyError,
			Elapsed: time.Since(start),
			Status:  resp.StatusCode,
			Err:     &ProbeError{Stage: StageStatus, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)},
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := time.Since(start)
	res := Result{Elapsed: elapsed, Status: resp.StatusCode}
	if err != nil {
		res.Latency = models.LatencyTimeout
		res.Err = &ProbeError{Stage: StageBody, Err: err}
		return res
	}

	if t.Expect != "" && !strings.Contains(string(body), t.Expect) {
		res.Latency = models.LatencyError
		res.Err = &ProbeError{Stage: StageContent, Err: fmt.Errorf("response does not contain %q", t.Expect)}
		return res
	}

	res.Latency = models.LatencyFromDuration(elapsed)
	return res
}
