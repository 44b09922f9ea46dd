package classform

import (
	"testing"

	"github.com/flywheeldev/hotswap/pkg/errorsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourceA1 = `package P

// hotswap:annotation(Service)
type A struct {
	Name string

	hits int ` + "`hotswap:\"static\"`" + `
}

func NewA(name string) *A { return &A{Name: name} }

func (a *A) F() int { return 1 }
`

const sourceA2 = `package P

// hotswap:annotation(Service)
type A struct {
	Name string

	hits int ` + "`hotswap:\"static\"`" + `
}

func NewA(name string) *A { return &A{Name: name} }

func (a *A) F() int { return 2 }
`

func TestReadFormBasic(t *testing.T) {
	form, err := ReadForm("P.A", "", []byte(sourceA1))
	require.NoError(t, err)

	assert.Equal(t, "P.A", form.Name)
	require.Len(t, form.Fields, 2)
	require.Len(t, form.Methods, 2)

	var ctor, f *Method
	for i := range form.Methods {
		m := &form.Methods[i]
		switch {
		case m.Constructor:
			ctor = m
		case m.Name == "F":
			f = m
		}
	}
	require.NotNil(t, ctor)
	require.NotNil(t, f)
	assert.Equal(t, []string{"Service"}, []string(form.Class))
}

func TestReadFormExcludesSyntheticAndInit(t *testing.T) {
	src := `package P

type B struct{}

func (b *B) __synthetic_helper() {}

func init() {}
`
	form, err := ReadForm("P.B", "", []byte(src))
	require.NoError(t, err)
	assert.Len(t, form.Methods, 0)
}

func TestReadFormMalformedClass(t *testing.T) {
	_, err := ReadForm("P.A", "P_A.hsc", []byte("package P\nfunc ( {"))
	require.Error(t, err)
	assert.True(t, errorsx.OfKind(err, errorsx.KindMalformedClass))
}

func TestReadFormNoClassType(t *testing.T) {
	_, err := ReadForm("P.Missing", "", []byte("package P\n\nfunc helper() {}\n"))
	require.Error(t, err)
	assert.True(t, errorsx.OfKind(err, errorsx.KindMalformedClass))
}

func TestBodyOnlyChangeKeepsSameMethodSet(t *testing.T) {
	form1, err := ReadForm("P.A", "", []byte(sourceA1))
	require.NoError(t, err)
	form2, err := ReadForm("P.A", "", []byte(sourceA2))
	require.NoError(t, err)

	assert.Equal(t, len(form1.Methods), len(form2.Methods))
	assert.Equal(t, ComputeFingerprint(form1, DefaultPolicy()), ComputeFingerprint(form2, DefaultPolicy()))
}
