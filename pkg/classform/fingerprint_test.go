package classform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourceOrdered = `package P

type A struct {
	Name string
	Age  int
}

func NewA() *A { return &A{} }

func (a *A) First() int  { return 1 }
func (a *A) Second() int { return 2 }
`

const sourceReordered = `package P

type A struct {
	Age  int
	Name string
}

func NewA() *A { return &A{} }

func (a *A) Second() int { return 2 }
func (a *A) First() int  { return 1 }
`

func TestFingerprintStableAcrossDeclarationOrder(t *testing.T) {
	f1, err := ReadForm("P.A", "", []byte(sourceOrdered))
	require.NoError(t, err)
	f2, err := ReadForm("P.A", "", []byte(sourceReordered))
	require.NoError(t, err)

	assert.Equal(t, ComputeFingerprint(f1, DefaultPolicy()), ComputeFingerprint(f2, DefaultPolicy()))
}

func TestFingerprintDeterministic(t *testing.T) {
	form, err := ReadForm("P.A", "", []byte(sourceOrdered))
	require.NoError(t, err)

	a := ComputeFingerprint(form, DefaultPolicy())
	b := ComputeFingerprint(form, DefaultPolicy())
	assert.Equal(t, a, b)
}

func TestFingerprintChangesOnSignatureChange(t *testing.T) {
	f1, err := ReadForm("P.A", "", []byte(sourceOrdered))
	require.NoError(t, err)

	src2 := `package P

type A struct {
	Name string
	Age  int
}

func NewA() *A { return &A{} }

func (a *A) First() int  { return 1 }
func (a *A) Second() string { return "2" }
`
	f2, err := ReadForm("P.A", "", []byte(src2))
	require.NoError(t, err)

	assert.NotEqual(t, ComputeFingerprint(f1, DefaultPolicy()), ComputeFingerprint(f2, DefaultPolicy()))
}

func TestFingerprintPrivateMethodPolicyGating(t *testing.T) {
	src := `package P

type A struct{ Name string }

func NewA() *A { return &A{} }

func (a *A) Public() int { return 1 }
func (a *A) private() int { return 2 }
`
	form, err := ReadForm("P.A", "", []byte(src))
	require.NoError(t, err)

	withoutPrivate := ComputeFingerprint(form, DefaultPolicy())

	withPrivate := DefaultPolicy()
	withPrivate.PrivateMethods = true
	withPrivateFP := ComputeFingerprint(form, withPrivate)

	assert.NotEqual(t, withoutPrivate, withPrivateFP)
}

func TestFingerprintStaticFieldPolicyGating(t *testing.T) {
	src := `package P

type A struct {
	Name string
	hits int ` + "`hotswap:\"static\"`" + `
}

func NewA() *A { return &A{} }
`
	form, err := ReadForm("P.A", "", []byte(src))
	require.NoError(t, err)

	allFields := DefaultPolicy()
	noStatic := DefaultPolicy()
	noStatic.StaticFields = false

	assert.NotEqual(t, ComputeFingerprint(form, allFields), ComputeFingerprint(form, noStatic))
}

func TestSourceHashStable(t *testing.T) {
	a := SourceHash([]byte("hello"))
	b := SourceHash([]byte("hello"))
	c := SourceHash([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
