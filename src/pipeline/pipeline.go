// Package pipeline discovers builds from the export API, reduces each
// build's event feed and aggregates accepted durations into a histogram.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"buildtime-agent/src/build"
	"buildtime-agent/src/contracts"
	"buildtime-agent/src/export"
	"buildtime-agent/src/filter"
	"buildtime-agent/src/histogram"
	"buildtime-agent/src/logger"
	"buildtime-agent/src/metrics"
	"buildtime-agent/src/sse"
	"buildtime-agent/src/stream"
)

const (
	// DefaultConcurrency is the number of detail feeds open at once.
	DefaultConcurrency = 5

	// DefaultSinkTimeout bounds each sink call.
	DefaultSinkTimeout = 10 * time.Second
)

// Metrics receives pipeline counters. metrics.Collector implements it.
type Metrics interface {
	BuildDiscovered()
	BuildReduced()
	BuildAccepted(d time.Duration)
	BuildRejected()
	DetailFeedOpened()
	DetailFeedClosed()
	StreamObserver(feed string) stream.Observer
}

type nopMetrics struct{}

func (nopMetrics) BuildDiscovered()                      {}
func (nopMetrics) BuildReduced()                         {}
func (nopMetrics) BuildAccepted(time.Duration)           {}
func (nopMetrics) BuildRejected()                        {}
func (nopMetrics) DetailFeedOpened()                     {}
func (nopMetrics) DetailFeedClosed()                     {}
func (nopMetrics) StreamObserver(string) stream.Observer { return nil }

// Progress is a point-in-time view of a run.
type Progress struct {
	Discovered  int64
	Pending     int
	Active      int64
	Completed   int64
	Accepted    int64
	LastBuildID string
}

// Stats counts what happened to the builds of a run.
type Stats struct {
	Discovered   int64
	Reduced      int64
	Accepted     int64
	Rejected     int64
	Inconsistent int64
	OutOfRange   int64
	Reconnects   int64
}

// Result is the outcome of a completed or drained run.
type Result struct {
	RunID        string
	ServerURL    string
	Since        time.Time
	Criteria     filter.Criteria
	Accumulator  *histogram.Accumulator
	Distribution histogram.Distribution
	Stats        Stats
	// Drained is set when Stop ended the run before discovery completed.
	Drained    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Pipeline runs once. Create a new one per run.
type Pipeline struct {
	opener           stream.Opener
	serverURL        string
	runID            string
	since            time.Time
	concurrency      int
	criteria         filter.Criteria
	skipInconsistent bool
	retryPolicy      stream.RetryPolicy
	stallTimeout     time.Duration
	logger           logger.Logger
	metrics          Metrics
	sinks            []Sink
	sinkTimeout      time.Duration
	progress         func(Progress)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSince sets the discovery start time. The zero time means all history.
func WithSince(t time.Time) Option {
	return func(p *Pipeline) { p.since = t }
}

// WithConcurrency bounds the number of detail feeds open at once.
func WithConcurrency(k int) Option {
	return func(p *Pipeline) { p.concurrency = k }
}

func WithCriteria(c filter.Criteria) Option {
	return func(p *Pipeline) { p.criteria = c }
}

// WithSkipInconsistent logs and counts builds without a usable duration
// instead of failing the run.
func WithSkipInconsistent(skip bool) Option {
	return func(p *Pipeline) { p.skipInconsistent = skip }
}

func WithRetryPolicy(rp stream.RetryPolicy) Option {
	return func(p *Pipeline) { p.retryPolicy = rp }
}

func WithStallTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.stallTimeout = d }
}

func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithSinks(sinks ...Sink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithSinkTimeout bounds each sink call. A call that runs out of time is
// logged like any other sink error.
func WithSinkTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.sinkTimeout = d }
}

// WithProgress registers a callback invoked as builds are discovered and
// completed. It may be called from several goroutines at once.
func WithProgress(fn func(Progress)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.runID = id }
}

// WithServerURL records the export server in reports.
func WithServerURL(url string) Option {
	return func(p *Pipeline) { p.serverURL = url }
}

func New(opener stream.Opener, opts ...Option) *Pipeline {
	p := &Pipeline{
		opener:      opener,
		runID:       uuid.NewString(),
		concurrency: DefaultConcurrency,
		sinkTimeout: DefaultSinkTimeout,
		retryPolicy: stream.RetryForever(),
		logger:      logger.NewSilentLogger(),
		metrics:     nopMetrics{},
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	if p.sinkTimeout <= 0 {
		p.sinkTimeout = DefaultSinkTimeout
	}
	if p.since.IsZero() {
		p.since = time.UnixMilli(0)
	}
	return p
}

// RunID returns the id of this run.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Stop stops admitting builds and ends discovery. Builds already admitted
// finish and Run returns a drained Result.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("[Pipeline] Stop requested, draining in-flight builds")
		close(p.stopCh)
	})
}

func (p *Pipeline) stopped() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

// run is the mutable state of one Run call.
type run struct {
	acc   *histogram.Accumulator
	queue *refQueue

	discovered   atomic.Int64
	reduced      atomic.Int64
	accepted     atomic.Int64
	rejected     atomic.Int64
	inconsistent atomic.Int64
	outOfRange   atomic.Int64
	reconnects   atomic.Int64
	active       atomic.Int64
	completed    atomic.Int64
}

func (r *run) stats() Stats {
	return Stats{
		Discovered:   r.discovered.Load(),
		Reduced:      r.reduced.Load(),
		Accepted:     r.accepted.Load(),
		Rejected:     r.rejected.Load(),
		Inconsistent: r.inconsistent.Load(),
		OutOfRange:   r.outOfRange.Load(),
		Reconnects:   r.reconnects.Load(),
	}
}

// Run consumes the discovery feed and every discovered build's detail feed.
// It returns when discovery has ended and every admitted build has been
// aggregated. A fatal error cancels the run and no Result is returned; the
// sinks then receive the run with status failed.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	r := &run{acc: histogram.New(), queue: newRefQueue()}
	result := &Result{
		RunID:       p.runID,
		ServerURL:   p.serverURL,
		Since:       p.since,
		Criteria:    p.criteria,
		Accumulator: r.acc,
		StartedAt:   time.Now(),
	}

	p.logger.Info("[Pipeline] Run %s: builds since %s, concurrency %d, filter %s",
		p.runID, p.since.UTC().Format(time.RFC3339), p.concurrency, p.criteria)
	p.notifyStarted(ctx, result)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	discoveryCtx, cancelDiscovery := context.WithCancel(runCtx)
	defer cancelDiscovery()
	go func() {
		select {
		case <-p.stopCh:
			cancelDiscovery()
		case <-discoveryCtx.Done():
		}
	}()

	var discoveryErr error
	discoveryDone := make(chan struct{})
	go func() {
		defer close(discoveryDone)
		defer r.queue.close()
		err := p.discover(discoveryCtx, r)
		// Cancellation by Stop, a failed build or the caller is not a
		// discovery failure.
		if err != nil && discoveryCtx.Err() == nil {
			discoveryErr = err
			cancelRun()
		}
	}()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(p.concurrency)

	// A slot is taken before a build is dequeued, so after Stop no build
	// waits for admission outside the queue.
	slots := make(chan struct{}, p.concurrency)
admit:
	for {
		select {
		case slots <- struct{}{}:
		case <-p.stopCh:
			break admit
		case <-gctx.Done():
			break admit
		}

		id, ok := r.queue.next(gctx, p.stopCh)
		if !ok {
			break
		}
		g.Go(func() error {
			defer func() { <-slots }()
			return p.processBuild(gctx, id, r)
		})
	}

	buildErr := g.Wait()
	cancelDiscovery()
	<-discoveryDone

	var runErr error
	switch {
	case ctx.Err() != nil:
		runErr = ctx.Err()
	case discoveryErr != nil:
		runErr = fmt.Errorf("discovery feed failed: %w", discoveryErr)
	case buildErr != nil:
		runErr = buildErr
	}

	result.Stats = r.stats()
	result.Distribution = r.acc.Snapshot()
	result.FinishedAt = time.Now()
	if runErr != nil {
		p.logger.Error("[Pipeline] Run %s failed: %v", p.runID, runErr)
		p.notifyFailed(ctx, result, runErr)
		return nil, runErr
	}
	result.Drained = p.stopped()

	if result.Drained {
		p.logger.Info("[Pipeline] Run %s drained: %d of %d discovered builds reduced",
			p.runID, result.Stats.Reduced, result.Stats.Discovered)
	} else {
		p.logger.Info("[Pipeline] Run %s complete: %d builds reduced, %d accepted",
			p.runID, result.Stats.Reduced, result.Stats.Accepted)
	}
	p.notifyCompleted(ctx, result)
	return result, nil
}

func (p *Pipeline) streamOptions(name, feed string, r *run) []stream.Option {
	var obs stream.Observer = &reconnectCounter{next: p.metrics.StreamObserver(feed), count: &r.reconnects}
	return []stream.Option{
		stream.WithName(name),
		stream.WithLogger(p.logger),
		stream.WithRetryPolicy(p.retryPolicy),
		stream.WithStallTimeout(p.stallTimeout),
		stream.WithObserver(obs),
	}
}

func (p *Pipeline) discover(ctx context.Context, r *run) error {
	s := stream.New(p.opener, export.BuildsSincePath(p.since), p.streamOptions("Discovery", metrics.FeedDiscovery, r)...)

	return s.Consume(ctx, func(ev sse.Event) error {
		if ev.Type == build.EnvelopeHeartbeat {
			return nil
		}
		id, err := build.ParseBuildRef(ev.Data)
		if err != nil {
			return fmt.Errorf("discovery event %q: %w", ev.ID, err)
		}

		r.discovered.Add(1)
		p.metrics.BuildDiscovered()
		r.queue.push(id)
		p.logger.Debug("[Pipeline] Discovered build %s", id)
		p.notifyProgress(r, id)
		return nil
	})
}

func (p *Pipeline) processBuild(ctx context.Context, id string, r *run) error {
	r.active.Add(1)
	p.metrics.DetailFeedOpened()
	defer func() {
		r.active.Add(-1)
		r.completed.Add(1)
		p.metrics.DetailFeedClosed()
		p.notifyProgress(r, id)
	}()

	p.logger.Info("[Pipeline] Streaming events for: %s", id)

	reducer := build.NewReducer(id)
	s := stream.New(p.opener, export.BuildEventsPath(id), p.streamOptions("Build "+id, metrics.FeedBuild, r)...)
	err := s.Consume(ctx, func(ev sse.Event) error {
		if ev.Type != build.EnvelopeBuildEvent {
			return nil
		}
		be, err := build.ParseEvent(ev.Data)
		if err != nil {
			return fmt.Errorf("build %s event %q: %w", id, ev.ID, err)
		}
		reducer.Apply(be)
		return nil
	})
	if err != nil {
		return err
	}

	r.reduced.Add(1)
	p.metrics.BuildReduced()
	return p.aggregate(ctx, reducer.Summary(), r)
}

func (p *Pipeline) aggregate(ctx context.Context, s build.Summary, r *run) error {
	if !p.criteria.Accept(s) {
		r.rejected.Add(1)
		p.metrics.BuildRejected()
		return nil
	}

	d, err := s.Duration()
	if err != nil {
		if p.skipInconsistent {
			r.inconsistent.Add(1)
			p.logger.Error("[Pipeline] Skipping build: %v", err)
			return nil
		}
		return err
	}

	if err := r.acc.Record(d); err != nil {
		if errors.Is(err, histogram.ErrOutOfRange) {
			r.outOfRange.Add(1)
			p.logger.Error("[Pipeline] Build %s not recorded: %v", s.BuildID, err)
			return nil
		}
		return err
	}

	r.accepted.Add(1)
	p.metrics.BuildAccepted(d)

	msg := summaryMessage(p.runID, s, d)
	for _, sink := range p.sinks {
		err := p.callSink(ctx, func(ctx context.Context) error {
			return sink.BuildAccepted(ctx, msg)
		})
		if err != nil {
			p.logger.Error("[Pipeline] Sink failed for build %s: %v", s.BuildID, err)
		}
	}
	return nil
}

// callSink runs fn with a deadline of sinkTimeout.
func (p *Pipeline) callSink(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.sinkTimeout)
	defer cancel()
	return fn(ctx)
}

func (p *Pipeline) notifyProgress(r *run, id string) {
	if p.progress == nil {
		return
	}
	p.progress(Progress{
		Discovered:  r.discovered.Load(),
		Pending:     r.queue.len(),
		Active:      r.active.Load(),
		Completed:   r.completed.Load(),
		Accepted:    r.accepted.Load(),
		LastBuildID: id,
	})
}

func (p *Pipeline) notifyStarted(ctx context.Context, result *Result) {
	report := result.Report()
	for _, sink := range p.sinks {
		err := p.callSink(ctx, func(ctx context.Context) error {
			return sink.RunStarted(ctx, &report)
		})
		if err != nil {
			p.logger.Error("[Pipeline] Sink failed to record run %s: %v", p.runID, err)
		}
	}
}

func (p *Pipeline) notifyCompleted(ctx context.Context, result *Result) {
	report := result.Report()
	p.sendCompleted(ctx, &report)
}

// notifyFailed records a failed run. The caller's context may already be
// cancelled, so only the sink timeout bounds these calls.
func (p *Pipeline) notifyFailed(ctx context.Context, result *Result, runErr error) {
	report := result.Report()
	report.Status = contracts.RunStatusFailed
	report.Error = runErr.Error()
	p.sendCompleted(context.WithoutCancel(ctx), &report)
}

func (p *Pipeline) sendCompleted(ctx context.Context, report *contracts.RunReport) {
	for _, sink := range p.sinks {
		err := p.callSink(ctx, func(ctx context.Context) error {
			return sink.RunCompleted(ctx, report)
		})
		if err != nil {
			p.logger.Error("[Pipeline] Sink failed to complete run %s: %v", p.runID, err)
		}
	}
}

// reconnectCounter counts reconnects for Stats and forwards to next.
type reconnectCounter struct {
	next  stream.Observer
	count *atomic.Int64
}

func (o *reconnectCounter) Connected(resumed bool) {
	if o.next != nil {
		o.next.Connected(resumed)
	}
}

func (o *reconnectCounter) Event() {
	if o.next != nil {
		o.next.Event()
	}
}

func (o *reconnectCounter) Reconnect(err error) {
	o.count.Add(1)
	if o.next != nil {
		o.next.Reconnect(err)
	}
}
