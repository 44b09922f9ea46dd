package diff

import (
	"testing"

	"github.com/flywheeldev/hotswap/pkg/classform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func form(t *testing.T, src string) *classform.ClassForm {
	t.Helper()
	f, err := classform.ReadForm("P.A", "", []byte(src))
	require.NoError(t, err)
	return f
}

const baseSrc = `package P

type A struct {
	Name string
}

func NewA() *A { return &A{} }

func (a *A) First() int { return 1 }
`

func TestDiffNoopIsEmptyAndBodyOnly(t *testing.T) {
	old := form(t, baseSrc)
	new_ := form(t, baseSrc)

	d := Compute(old, new_)
	assert.True(t, d.Empty())
	assert.True(t, d.BodyOnly())
}

func TestDiffMethodAdded(t *testing.T) {
	old := form(t, baseSrc)
	newSrc := baseSrc + "\nfunc (a *A) Second() int { return 2 }\n"
	new_ := form(t, newSrc)

	d := Compute(old, new_)
	assert.False(t, d.BodyOnly())
	assert.Equal(t, []string{"Second()int"}, d.MethodsAdded)
	assert.Empty(t, d.MethodsRemoved)
}

func TestDiffSymmetry(t *testing.T) {
	old := form(t, baseSrc)
	newSrc := baseSrc + "\nfunc (a *A) Second() int { return 2 }\n"
	new_ := form(t, newSrc)

	forward := Compute(old, new_)
	backward := Compute(new_, old)

	assert.Equal(t, forward.MethodsAdded, backward.MethodsRemoved)
	assert.Equal(t, forward.MethodsRemoved, backward.MethodsAdded)
}

func TestDiffFieldTypeChanged(t *testing.T) {
	old := form(t, baseSrc)
	newSrc := `package P

type A struct {
	Name int
}

func NewA() *A { return &A{} }

func (a *A) First() int { return 1 }
`
	new_ := form(t, newSrc)

	d := Compute(old, new_)
	require.Len(t, d.FieldsTypeChanged, 1)
	assert.Equal(t, "Name", d.FieldsTypeChanged[0].Name)
	assert.Equal(t, "string", d.FieldsTypeChanged[0].Old)
	assert.Equal(t, "int", d.FieldsTypeChanged[0].New)
	assert.False(t, d.BodyOnly())
}

func TestDiffSupertypeChanged(t *testing.T) {
	old := form(t, baseSrc)
	newSrc := `package P

// hotswap:extends(Base2)
type A struct {
	Name string
}

func NewA() *A { return &A{} }

func (a *A) First() int { return 1 }
`
	new_ := form(t, newSrc)

	d := Compute(old, new_)
	assert.True(t, d.SupertypeChanged)
	assert.False(t, d.BodyOnly())
}
