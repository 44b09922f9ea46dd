package fakeruntime

import (
	"context"
	"testing"

	"github.com/flywheeldev/hotswap/pkg/diff"
	"github.com/flywheeldev/hotswap/pkg/errorsx"
	"github.com/flywheeldev/hotswap/pkg/runtimeiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadClassReturnsSeededBytes(t *testing.T) {
	rt := New()
	loader := NewLoader("L")
	id := runtimeiface.ClassIdentity{Name: "p.A", Loader: loader}
	rt.LoadClass(id, []byte("package p\n"))

	bytes, _, err := rt.ReadClass(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []byte("package p\n"), bytes)
}

func TestReadClassUnresolvedIdentity(t *testing.T) {
	rt := New()
	loader := NewLoader("L")
	_, _, err := rt.ReadClass(context.Background(), runtimeiface.ClassIdentity{Name: "p.Missing", Loader: loader})
	assert.True(t, errorsx.OfKind(err, errorsx.KindUnresolvedIdentity))
}

func TestLoadClassThroughHookAppliesTransformedBytes(t *testing.T) {
	rt := New()
	loader := NewLoader("L")
	id := runtimeiface.ClassIdentity{Name: "p.A", Loader: loader}

	hook := runtimeiface.ClassLoadHookFunc(func(ctx context.Context, name string, l runtimeiface.Loader, original []byte) ([]byte, error) {
		return append(original, []byte("// transformed\n")...), nil
	})

	out, err := rt.LoadClassThroughHook(context.Background(), hook, id, []byte("package p\n"))
	require.NoError(t, err)

	stored, _, err := rt.ReadClass(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, out, stored)
	assert.Contains(t, string(stored), "transformed")
}

func TestRedefineAppliesBatchAtomically(t *testing.T) {
	rt := New()
	loader := NewLoader("L")
	idA := runtimeiface.ClassIdentity{Name: "p.A", Loader: loader}
	idB := runtimeiface.ClassIdentity{Name: "p.B", Loader: loader}
	rt.LoadClass(idA, []byte("old-a"))
	rt.LoadClass(idB, []byte("old-b"))

	err := rt.Redefine(context.Background(), []runtimeiface.RedefinitionPair{
		{Identity: idA, NewBytes: []byte("new-a")},
		{Identity: idB, NewBytes: []byte("new-b")},
	})
	require.NoError(t, err)

	a, _, _ := rt.ReadClass(context.Background(), idA)
	b, _, _ := rt.ReadClass(context.Background(), idB)
	assert.Equal(t, []byte("new-a"), a)
	assert.Equal(t, []byte("new-b"), b)
}

func TestRedefineTransientThenSucceeds(t *testing.T) {
	rt := New()
	rt.FailTransientCount = 2
	loader := NewLoader("L")
	id := runtimeiface.ClassIdentity{Name: "p.A", Loader: loader}
	rt.LoadClass(id, []byte("old"))

	pairs := []runtimeiface.RedefinitionPair{{Identity: id, NewBytes: []byte("new")}}

	err := rt.Redefine(context.Background(), pairs)
	assert.True(t, errorsx.OfKind(err, errorsx.KindRedefineTransient))
	err = rt.Redefine(context.Background(), pairs)
	assert.True(t, errorsx.OfKind(err, errorsx.KindRedefineTransient))
	err = rt.Redefine(context.Background(), pairs)
	require.NoError(t, err)

	assert.Equal(t, 3, rt.RedefineCallCount())
}

func TestRedefinePermanentRejection(t *testing.T) {
	rt := New()
	rt.FailPermanent = true
	loader := NewLoader("L")
	id := runtimeiface.ClassIdentity{Name: "p.A", Loader: loader}
	rt.LoadClass(id, []byte("old"))

	err := rt.Redefine(context.Background(), []runtimeiface.RedefinitionPair{{Identity: id, NewBytes: []byte("new")}})
	assert.True(t, errorsx.OfKind(err, errorsx.KindRedefinePermanent))
	assert.False(t, errorsx.OfKind(err, errorsx.KindRedefineTransient))
}

func TestClassifyChangeDefaultsToRedefinable(t *testing.T) {
	rt := New()
	assert.Equal(t, runtimeiface.Redefinable, rt.ClassifyChange(diff.Diff{}))
}

func TestClassifyChangeOverride(t *testing.T) {
	rt := New()
	rt.ClassifyFunc = func(d diff.Diff) runtimeiface.Classification { return runtimeiface.Structural }
	assert.Equal(t, runtimeiface.Structural, rt.ClassifyChange(diff.Diff{}))
}

func TestLoaderParentHierarchy(t *testing.T) {
	root := NewLoader("root")
	child := root.Child("child")

	parent, ok := child.Parent()
	require.True(t, ok)
	assert.Equal(t, root, parent)

	_, ok = root.Parent()
	assert.False(t, ok)
}
