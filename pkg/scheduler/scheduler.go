// Package scheduler implements the single-threaded coordinator that
// coalesces RedefinitionRequests, diffs old against new ClassForm,
// partitions a batch into redefinable and structural changes, issues the
// native redefine primitive, retries transient failures with backoff, and
// fires ClassRedefined events in dependency order.
//
// Debouncing keeps a pending map (one request per identity) with both a
// renewable minimum timer and a hard maximum ceiling shared by the whole
// pending batch, rather than one fixed timer.
// Retry bookkeeping tracks attempt count and last failure reason per
// pending batch. A per-identity fingerprint cache, keyed on the
// configured policy, short-circuits a resubmission that reproduces what
// was last applied.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/flywheeldev/hotswap/pkg/classform"
	"github.com/flywheeldev/hotswap/pkg/diff"
	"github.com/flywheeldev/hotswap/pkg/errorsx"
	"github.com/flywheeldev/hotswap/pkg/eventbus"
	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
)

// Defaults for the scheduler's configuration surface.
const (
	DefaultDebounceMin  = 300 * time.Millisecond
	DefaultDebounceMax  = 1500 * time.Millisecond
	DefaultRetryCount   = 3
	DefaultRetryBackoff = 100 * time.Millisecond
)

// Config holds the scheduler's tunables. Zero values are replaced with
// the package defaults by New. FingerprintPolicy gates both which member
// categories classify treats as structural and the identity-keyed
// no-op cache in prepare; its own zero value defaults to
// classform.DefaultPolicy.
type Config struct {
	DebounceMin       time.Duration
	DebounceMax       time.Duration
	RetryCount        int
	RetryBackoff      time.Duration
	FingerprintPolicy classform.Policy
}

func (c Config) withDefaults() Config {
	if c.DebounceMin <= 0 {
		c.DebounceMin = DefaultDebounceMin
	}
	if c.DebounceMax <= 0 {
		c.DebounceMax = DefaultDebounceMax
	}
	if c.RetryCount <= 0 {
		c.RetryCount = DefaultRetryCount
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.FingerprintPolicy == (classform.Policy{}) {
		c.FingerprintPolicy = classform.DefaultPolicy()
	}
	return c
}

// OnFailure reports a per-class failure: a malformed request, an identity
// the reflective reader could not resolve, or a permanent redefine
// rejection. A permanent failure surfaces an error per affected
// ClassIdentity.
type OnFailure func(identity runtimeiface.ClassIdentity, err error)

// Scheduler is the redefinition coordinator. All mutation of its
// pending-request state happens on the single goroutine running Run.
type Scheduler struct {
	cfg      Config
	reader   runtimeiface.ReflectiveReader
	redefine runtimeiface.RedefinePrimitive
	bus      *eventbus.Bus
	onFail   OnFailure

	submitCh     chan RedefinitionRequest
	flushCh      chan struct{}
	shutdownCh   chan struct{}
	drainedCh    chan struct{}
	shutdownOnce sync.Once

	// lastApplied remembers the fingerprint, under the configured policy,
	// of the last form applied in place, or fired as a structural change,
	// for each ClassIdentity; a failed redefinition is not recorded.
	// Touched only from Run's goroutine, same as pending.
	lastApplied map[string]classform.Fingerprint
}

// New constructs a scheduler. reader and redefine are the runtime
// attachment points; bus receives ClassRedefined events.
func New(cfg Config, reader runtimeiface.ReflectiveReader, redefine runtimeiface.RedefinePrimitive, bus *eventbus.Bus, onFail OnFailure) *Scheduler {
	return &Scheduler{
		cfg:         cfg.withDefaults(),
		reader:      reader,
		redefine:    redefine,
		bus:         bus,
		onFail:      onFail,
		submitCh:    make(chan RedefinitionRequest, 256),
		flushCh:     make(chan struct{}, 1),
		shutdownCh:  make(chan struct{}),
		drainedCh:   make(chan struct{}),
		lastApplied: make(map[string]classform.Fingerprint),
	}
}

// Submit enqueues req from any producer goroutine over an MPSC
// submission channel. It returns immediately; coalescing happens on
// Run's goroutine.
func (s *Scheduler) Submit(req RedefinitionRequest) {
	select {
	case s.submitCh <- req:
	case <-s.shutdownCh:
	}
}

// FlushNow requests an immediate flush of whatever is pending, bypassing
// both debounce timers. A push-mode commit marker calls this so an
// explicit ordered batch coalesces as one unit instead of waiting out the
// inactivity window.
func (s *Scheduler) FlushNow() {
	select {
	case s.flushCh <- struct{}{}:
	default:
	}
}

// Shutdown stops accepting new batches and blocks until Run has returned.
// Safe to call once; a second call is a no-op.
func (s *Scheduler) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	<-s.drainedCh
}

// Run is the scheduler's single goroutine: it owns the pending map and
// the two debounce timers and must not be called concurrently with
// itself. It returns when ctx is cancelled or Shutdown is called.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.drainedCh)

	pending := make(map[string]RedefinitionRequest)
	var minTimer, maxTimer *time.Timer
	var minC, maxC <-chan time.Time

	stop := func(t *time.Timer) {
		if t != nil {
			t.Stop()
		}
	}

	flushAndReset := func() {
		s.flush(ctx, pending)
		pending = make(map[string]RedefinitionRequest)
		stop(minTimer)
		stop(maxTimer)
		minTimer, maxTimer = nil, nil
		minC, maxC = nil, nil
	}

	for {
		select {
		case req, ok := <-s.submitCh:
			if !ok {
				return
			}
			pending[req.Identity.String()] = req

			stop(minTimer)
			minTimer = time.NewTimer(s.cfg.DebounceMin)
			minC = minTimer.C
			if maxTimer == nil {
				maxTimer = time.NewTimer(s.cfg.DebounceMax)
				maxC = maxTimer.C
			}

		case <-minC:
			flushAndReset()

		case <-maxC:
			flushAndReset()

		case <-s.flushCh:
			flushAndReset()

		case <-s.shutdownCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

type batchItem struct {
	req     RedefinitionRequest
	oldForm *classform.ClassForm
	newForm *classform.ClassForm
	diff    diff.Diff

	// skip marks a request whose new form's fingerprint already matches
	// the last form applied to this identity: prepare stops short of
	// reading the currently-loaded form or computing a diff for it.
	skip        bool
	fingerprint classform.Fingerprint
}

// flush runs the batch-ready algorithm over pending: prepare, classify,
// redefine with retry, and fire, partitioned into redefinable and
// structural groups.
func (s *Scheduler) flush(ctx context.Context, pending map[string]RedefinitionRequest) {
	if len(pending) == 0 {
		return
	}

	var redefinable, structural []batchItem
	for _, req := range pending {
		item, classification, err := s.prepare(ctx, req)
		if err != nil {
			s.fail(req.Identity, err)
			continue
		}
		if item.skip {
			continue
		}
		if classification == runtimeiface.Structural {
			structural = append(structural, item)
		} else {
			redefinable = append(redefinable, item)
		}
	}

	redefinable = sortByDependency(redefinable)
	structural = sortByDependency(structural)

	for _, item := range structural {
		s.fire(item, runtimeiface.Structural)
		s.lastApplied[item.req.Identity.String()] = item.fingerprint
	}

	if len(redefinable) == 0 {
		return
	}

	pairs := make([]runtimeiface.RedefinitionPair, len(redefinable))
	for i, item := range redefinable {
		pairs[i] = runtimeiface.RedefinitionPair{Identity: item.req.Identity, NewBytes: item.req.NewBytes}
	}

	if err := s.redefineWithRetry(ctx, pairs); err != nil {
		for _, item := range redefinable {
			s.fail(item.req.Identity, err)
			// Plugins are still notified of a permanent failure so they
			// can compensate.
			s.fire(item, runtimeiface.Redefinable)
		}
		return
	}

	for _, item := range redefinable {
		s.fire(item, runtimeiface.Redefinable)
		s.lastApplied[item.req.Identity.String()] = item.fingerprint
	}
}

// prepare reads both ClassForms for req and classifies the resulting
// diff. Before touching the reader, it checks req's new form against the
// fingerprint last applied to this identity (under the scheduler's
// configured policy); a match means this submission reproduces the form
// last applied or reported as structural, so the request is marked skip
// without reading the
// currently-loaded form or computing a diff.
func (s *Scheduler) prepare(ctx context.Context, req RedefinitionRequest) (batchItem, runtimeiface.Classification, error) {
	newForm, err := classform.ReadForm(req.Identity.Name, "", req.NewBytes)
	if err != nil {
		return batchItem{}, 0, err
	}

	fp := classform.ComputeFingerprint(newForm, s.cfg.FingerprintPolicy)
	key := req.Identity.String()
	if cached, ok := s.lastApplied[key]; ok && cached == fp {
		return batchItem{req: req, newForm: newForm, fingerprint: fp, skip: true}, runtimeiface.Redefinable, nil
	}

	oldBytes, _, err := s.reader.ReadClass(ctx, req.Identity)
	if err != nil {
		return batchItem{}, 0, errorsx.UnresolvedIdentity(req.Identity.Name, err.Error())
	}
	oldForm, err := classform.ReadForm(req.Identity.Name, "", oldBytes)
	if err != nil {
		return batchItem{}, 0, err
	}

	d := diff.Compute(oldForm, newForm)
	item := batchItem{req: req, oldForm: oldForm, newForm: newForm, diff: d, fingerprint: fp}
	return item, s.classify(d), nil
}

// classify applies the scheduler's configured fingerprint policy to
// decide which categories of member change are structurally significant,
// before consulting the runtime's own ClassifyChange for anything milder
// (body-only or annotation-only diffs it may still refuse to redefine in
// place). A change to a category the policy doesn't track (e.g. method
// membership, with Methods/PrivateMethods/StaticMethods all off) is left
// entirely to the runtime's own classification rather than forced
// structural here; signature and type changes are always structural.
func (s *Scheduler) classify(d diff.Diff) runtimeiface.Classification {
	if s.structurallySignificant(d) {
		return runtimeiface.Structural
	}
	if s.redefine == nil {
		return runtimeiface.Redefinable
	}
	return s.redefine.ClassifyChange(d)
}

func (s *Scheduler) structurallySignificant(d diff.Diff) bool {
	p := s.cfg.FingerprintPolicy
	methodsTracked := p.Methods || p.PrivateMethods || p.StaticMethods
	fieldsTracked := p.Fields || p.StaticFields

	if len(d.MethodsSignatureChanged) > 0 || len(d.FieldsTypeChanged) > 0 {
		return true
	}
	if methodsTracked && (len(d.MethodsAdded) > 0 || len(d.MethodsRemoved) > 0) {
		return true
	}
	if fieldsTracked && (len(d.FieldsAdded) > 0 || len(d.FieldsRemoved) > 0) {
		return true
	}
	if p.SuperClass && d.SupertypeChanged {
		return true
	}
	if p.Interfaces && d.InterfacesChanged {
		return true
	}
	return false
}

// redefineWithRetry issues the native redefine for pairs, retrying a
// transient failure with exponential backoff up to cfg.RetryCount times.
// The scheduler goroutine blocks for the duration of every attempt,
// including the sleeps between them, which is intentional: it keeps the
// batch atomic with respect to other submissions.
func (s *Scheduler) redefineWithRetry(ctx context.Context, pairs []runtimeiface.RedefinitionPair) error {
	if s.redefine == nil {
		return nil
	}
	backoff := s.cfg.RetryBackoff
	var err error
	for attempt := 0; attempt <= s.cfg.RetryCount; attempt++ {
		err = s.redefine.Redefine(ctx, pairs)
		if err == nil {
			return nil
		}
		if !errorsx.OfKind(err, errorsx.KindRedefineTransient) {
			return err
		}
		if attempt == s.cfg.RetryCount {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}

func (s *Scheduler) fail(identity runtimeiface.ClassIdentity, err error) {
	if s.onFail != nil {
		s.onFail(identity, err)
	}
}

func (s *Scheduler) fire(item batchItem, classification runtimeiface.Classification) {
	if s.bus == nil {
		return
	}
	s.bus.Dispatch(eventbus.ClassRedefined(item.req.Identity, item.oldForm, item.newForm, item.diff, classification))
}

// sortByDependency orders items so a class whose superclass is also in
// the batch comes after it, via repeated passes over the zero-indegree
// set (Kahn's algorithm). A cycle (which should not
// occur for a well-formed inheritance graph) breaks by appending whatever
// remains in its original order rather than looping forever.
func sortByDependency(items []batchItem) []batchItem {
	if len(items) < 2 {
		return items
	}

	byName := make(map[string]int, len(items))
	for i, it := range items {
		byName[it.req.Identity.Name] = i
	}

	depCount := make([]int, len(items))
	dependents := make(map[int][]int)
	for i, it := range items {
		if j, ok := byName[it.newForm.Super]; ok && j != i {
			depCount[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	visited := make([]bool, len(items))
	order := make([]int, 0, len(items))
	for len(order) < len(items) {
		progressed := false
		for i := range items {
			if visited[i] || depCount[i] > 0 {
				continue
			}
			visited[i] = true
			order = append(order, i)
			progressed = true
			for _, dep := range dependents[i] {
				depCount[dep]--
			}
		}
		if !progressed {
			for i := range items {
				if !visited[i] {
					visited[i] = true
					order = append(order, i)
				}
			}
			break
		}
	}

	out := make([]batchItem, len(items))
	for pos, idx := range order {
		out[pos] = items[idx]
	}
	return out
}
