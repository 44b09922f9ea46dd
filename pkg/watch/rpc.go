package watch

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/flywheeldev/hotswap/pkg/errorsx"
	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
	"github.com/flywheeldev/hotswap/pkg/scheduler"
	"go.lsp.dev/jsonrpc2"
)

// PushClassMethod is the JSON-RPC method name clients (cmd/hotswapctl)
// call to push new class bytes into a running engine.
const PushClassMethod = "hotswap/pushClass"

// CommitBatchMethod closes an ordered run of PushClassMethod calls sent
// over one connection, telling the scheduler to flush everything it has
// pending at once rather than waiting out the debounce window. The flush
// covers every pending request, from any source; pushes that a debounce
// timer already flushed before the commit are not regrouped.
const CommitBatchMethod = "hotswap/commitBatch"

// PushStatus is the outcome of a single push-mode command.
type PushStatus string

const (
	StatusOK       PushStatus = "ok"
	StatusRejected PushStatus = "rejected"
	StatusError    PushStatus = "error"
)

// PushClassParams is the request payload for PushClassMethod.
type PushClassParams struct {
	Loader string `json:"loader"`
	Class  string `json:"class"`
	Bytes  []byte `json:"bytes"`
	Source string `json:"source"`
}

// PushClassResult acknowledges a push: Status is "ok" for an accepted
// submission, "rejected" when the command itself is invalid (unknown
// loader, empty class name), with ErrorKind naming which errorsx.Kind
// the rejection corresponds to.
type PushClassResult struct {
	Status    PushStatus `json:"status"`
	ErrorKind string     `json:"errorKind,omitempty"`
}

// CommitBatchResult acknowledges a commit marker.
type CommitBatchResult struct {
	Status PushStatus `json:"status"`
}

// LoaderResolver maps the loader name carried in a push request to the
// live runtimeiface.Loader it identifies. A command naming an unknown
// loader is rejected.
type LoaderResolver func(name string) (runtimeiface.Loader, bool)

// BatchFlusher is implemented by a Submitter that can also force an
// immediate flush of whatever is pending. CommandSource type-asserts for
// it to honor CommitBatchMethod; a Submitter that doesn't implement it
// simply never short-circuits the debounce window.
type BatchFlusher interface {
	FlushNow()
}

// CommandSource serves PushClassMethod and CommitBatchMethod over a
// jsonrpc2 connection, normalising each accepted push into a
// RedefinitionRequest submitted to the scheduler. It wires
// jsonrpc2.NewStream/NewConn over any io.ReadWriteCloser transport and
// serves these two custom methods rather than a full LSP method set.
type CommandSource struct {
	resolver  LoaderResolver
	submitter Submitter
}

// NewCommandSource constructs a command source. resolver and submitter
// must be non-nil.
func NewCommandSource(resolver LoaderResolver, submitter Submitter) *CommandSource {
	return &CommandSource{resolver: resolver, submitter: submitter}
}

// Serve accepts one jsonrpc2 connection over rwc and blocks until it
// closes or ctx is cancelled.
func (c *CommandSource) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	stream := jsonrpc2.NewStream(rwc)
	conn := jsonrpc2.NewConn(stream)
	conn.Go(ctx, c.handle)

	select {
	case <-conn.Done():
		return conn.Err()
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
}

func (c *CommandSource) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case PushClassMethod:
		var params PushClassParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.ParseError, err.Error()))
		}
		return reply(ctx, c.accept(params), nil)

	case CommitBatchMethod:
		return reply(ctx, c.commit(), nil)

	default:
		return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.MethodNotFound, "unknown method: "+req.Method()))
	}
}

// accept resolves params.Loader and submits a RedefinitionRequest; it
// holds all of handle's logic that doesn't touch the jsonrpc2 transport
// types, so it can be exercised directly in tests. A rejection is
// reported in the result's Status/ErrorKind rather than as a transport
// error, matching the push-mode response shape.
func (c *CommandSource) accept(params PushClassParams) PushClassResult {
	if params.Class == "" {
		return PushClassResult{Status: StatusRejected, ErrorKind: errorsx.KindMalformedClass.String()}
	}

	loader, ok := c.resolver(params.Loader)
	if !ok {
		return PushClassResult{Status: StatusRejected, ErrorKind: errorsx.KindUnresolvedIdentity.String()}
	}

	c.submitter.Submit(scheduler.RedefinitionRequest{
		Identity:    runtimeiface.ClassIdentity{Name: params.Class, Loader: loader},
		NewBytes:    params.Bytes,
		Source:      params.Source,
		SubmittedAt: time.Now(),
	})

	return PushClassResult{Status: StatusOK}
}

// commit forces an immediate scheduler flush when the submitter supports
// it, closing out whatever batch is pending.
func (c *CommandSource) commit() CommitBatchResult {
	if f, ok := c.submitter.(BatchFlusher); ok {
		f.FlushNow()
	}
	return CommitBatchResult{Status: StatusOK}
}

// PushSession wraps one JSON-RPC connection for sending an ordered run of
// pushes followed by a commit marker, so the scheduler coalesces the
// whole run into a single batch. Used by cmd/hotswapctl.
type PushSession struct {
	conn jsonrpc2.Conn
}

// NewPushSession opens a session over rwc. The caller owns rwc's
// lifetime via Close.
func NewPushSession(rwc io.ReadWriteCloser) *PushSession {
	return &PushSession{conn: jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))}
}

// Push sends one PushClassMethod call on the session.
func (s *PushSession) Push(ctx context.Context, params PushClassParams) (PushClassResult, error) {
	var result PushClassResult
	_, err := s.conn.Call(ctx, PushClassMethod, params, &result)
	return result, err
}

// Commit sends the commit marker, closing the current batch.
func (s *PushSession) Commit(ctx context.Context) (CommitBatchResult, error) {
	var result CommitBatchResult
	_, err := s.conn.Call(ctx, CommitBatchMethod, struct{}{}, &result)
	return result, err
}

// Close closes the underlying connection.
func (s *PushSession) Close() error { return s.conn.Close() }

// PushClass is a one-shot convenience wrapper around PushSession for a
// single push with no batch semantics.
func PushClass(ctx context.Context, rwc io.ReadWriteCloser, params PushClassParams) (PushClassResult, error) {
	sess := NewPushSession(rwc)
	defer sess.Close()
	return sess.Push(ctx, params)
}
