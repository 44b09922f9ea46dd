package editor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const source = `package P

type A struct {
	Name string
}

func NewA(name string) *A { return &A{Name: name} }

func (a *A) Greet() string {
	return "hello " + a.Name
}

func (a *A) Divide(x, y int) (result int, err error) {
	result = x / y
	return
}
`

func TestOpenUnknownClassFails(t *testing.T) {
	_, err := Open("P.Missing", "", []byte("package P\nfunc helper() {}\n"))
	require.Error(t, err)
	var invalid *InvalidEditError
	assert.ErrorAs(t, err, &invalid)
}

func TestInsertField(t *testing.T) {
	e, err := Open("P.A", "", []byte(source))
	require.NoError(t, err)

	require.NoError(t, e.InsertField("hits", "int", `hotswap:"static"`))
	out, err := e.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(out), "hits int")
}

func TestPrependAndAppendStatement(t *testing.T) {
	e, err := Open("P.A", "", []byte(source))
	require.NoError(t, err)

	require.NoError(t, e.PrependStatement("Greet", `println("enter Greet")`))
	require.NoError(t, e.AppendStatement("Greet", `println("leave Greet")`))

	out, err := e.Bytes()
	require.NoError(t, err)
	text := string(out)
	assert.True(t, strings.Index(text, "enter Greet") < strings.Index(text, "hello "))
	assert.Contains(t, text, "leave Greet")
}

func TestPrependUnknownMethod(t *testing.T) {
	e, err := Open("P.A", "", []byte(source))
	require.NoError(t, err)

	err = e.PrependStatement("DoesNotExist", `println("x")`)
	require.Error(t, err)
	var unknown *UnknownMemberError
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, "method", unknown.Kind)
}

func TestReplaceBody(t *testing.T) {
	e, err := Open("P.A", "", []byte(source))
	require.NoError(t, err)

	require.NoError(t, e.ReplaceBody("Greet", `return "rewritten"`))
	out, err := e.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"rewritten"`)
	assert.NotContains(t, string(out), `"hello "`)
}

func TestWrapReturnsNamedResults(t *testing.T) {
	e, err := Open("P.A", "", []byte(source))
	require.NoError(t, err)

	require.NoError(t, e.WrapReturns("Divide", `println("before")`, `println("after")`))
	out, err := e.Bytes()
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "before")
	assert.Contains(t, text, "after")
}

func TestWrapReturnsUnnamedResults(t *testing.T) {
	e, err := Open("P.A", "", []byte(source))
	require.NoError(t, err)

	require.NoError(t, e.WrapReturns("Greet", ``, `println("exit")`))
	out, err := e.Bytes()
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "__hotswap_ret0")
	assert.Contains(t, text, "exit")
}

func TestRenameReferences(t *testing.T) {
	e, err := Open("P.A", "", []byte(source))
	require.NoError(t, err)

	require.NoError(t, e.RenameReferences(map[string]string{"Name": "FullName"}))
	out, err := e.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(out), "FullName")
	assert.NotContains(t, string(out), "a.Name")
}

func TestInvalidEditOnMalformedStatement(t *testing.T) {
	e, err := Open("P.A", "", []byte(source))
	require.NoError(t, err)

	err = e.AppendStatement("Greet", `this is not valid go (((`)
	require.Error(t, err)
	var invalid *InvalidEditError
	assert.ErrorAs(t, err, &invalid)
}

func TestNoopEditRendersEquivalentSource(t *testing.T) {
	e, err := Open("P.A", "", []byte(source))
	require.NoError(t, err)

	out, err := e.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(out), "func (a *A) Greet() string {")
}
