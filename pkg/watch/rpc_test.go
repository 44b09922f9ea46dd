package watch

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
)

func TestCommandSourceAcceptSubmitsResolvedLoader(t *testing.T) {
	loader := testLoader{"L"}
	resolver := func(name string) (runtimeiface.Loader, bool) {
		if name == "L" {
			return loader, true
		}
		return nil, false
	}
	sub := newFakeSubmitter()
	cs := NewCommandSource(resolver, sub)

	result := cs.accept(PushClassParams{Loader: "L", Class: "p.A", Bytes: []byte("package p\n")})
	if result.Status != StatusOK {
		t.Fatalf("expected status ok, got %+v", result)
	}

	select {
	case req := <-sub.ch:
		if req.Identity.Name != "p.A" || req.Identity.Loader != loader {
			t.Errorf("unexpected request: %+v", req)
		}
	default:
		t.Fatal("expected a submitted request")
	}
}

func TestCommandSourceAcceptRejectsUnknownLoader(t *testing.T) {
	resolver := func(name string) (runtimeiface.Loader, bool) { return nil, false }
	sub := newFakeSubmitter()
	cs := NewCommandSource(resolver, sub)

	result := cs.accept(PushClassParams{Loader: "missing", Class: "p.A"})
	if result.Status != StatusRejected || result.ErrorKind == "" {
		t.Fatalf("expected a rejected status with an error kind, got %+v", result)
	}

	select {
	case req := <-sub.ch:
		t.Fatalf("should not submit on rejection, got %v", req)
	default:
	}
}

type fakeBatchSubmitter struct {
	*fakeSubmitter
	flushed int
}

func (f *fakeBatchSubmitter) FlushNow() { f.flushed++ }

func TestCommandSourceCommitFlushesWhenSupported(t *testing.T) {
	sub := &fakeBatchSubmitter{fakeSubmitter: newFakeSubmitter()}
	cs := NewCommandSource(func(string) (runtimeiface.Loader, bool) { return nil, false }, sub)

	result := cs.commit()
	if result.Status != StatusOK {
		t.Fatalf("expected status ok, got %+v", result)
	}
	if sub.flushed != 1 {
		t.Fatalf("expected FlushNow to be called once, got %d", sub.flushed)
	}
}

func TestCommandSourceCommitWithoutFlusherStillAcks(t *testing.T) {
	sub := newFakeSubmitter()
	cs := NewCommandSource(func(string) (runtimeiface.Loader, bool) { return nil, false }, sub)

	result := cs.commit()
	if result.Status != StatusOK {
		t.Fatalf("expected status ok, got %+v", result)
	}
}

func TestPushClassParamsJSONRoundTrip(t *testing.T) {
	want := PushClassParams{Loader: "L", Class: "p.A", Bytes: []byte("package p\n"), Source: "rpc"}
	b, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got PushClassParams
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}
