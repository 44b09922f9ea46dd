// Package editor is the thin, semantically stable adapter over Go's own
// AST toolchain used to edit a class in place: open it from source bytes,
// edit its methods and fields, and re-render edited bytes. Rendering is
// delegated entirely to go/printer and go/format, which preserve the
// structural validity of the edited artifact.
package editor

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/parser"
	"go/printer"
	"go/token"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/astutil"
)

// Editor holds one open class's AST and supports a sequence of edits
// before rendering edited bytes. An Editor is not safe for concurrent use.
type Editor struct {
	fset       *token.FileSet
	file       *ast.File
	typeSpec   *ast.TypeSpec
	className  string
	simpleName string
}

// Open parses source into an editable class. filename is used only for
// diagnostics and may be empty.
func Open(className, filename string, source []byte) (*Editor, error) {
	if filename == "" {
		filename = className + ".hsc"
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, source, parser.ParseComments)
	if err != nil {
		return nil, invalidEdit(className, "open", "source does not parse", err)
	}

	simple := simpleName(className)
	ts := findTypeSpec(file, simple)
	if ts == nil {
		return nil, invalidEdit(className, "open", "no exported type declaration matching class name", nil)
	}

	return &Editor{fset: fset, file: file, typeSpec: ts, className: className, simpleName: ts.Name.Name}, nil
}

func simpleName(className string) string {
	if idx := strings.LastIndexByte(className, '.'); idx >= 0 {
		return className[idx+1:]
	}
	return className
}

func findTypeSpec(file *ast.File, simple string) *ast.TypeSpec {
	var first *ast.TypeSpec
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok || !ts.Name.IsExported() {
				continue
			}
			if simple != "" && ts.Name.Name == simple {
				return ts
			}
			if first == nil {
				first = ts
			}
		}
	}
	return first
}

// InsertField adds a new field to the class's struct body. typeExpr is a
// Go type expression source fragment ("int", "*Widget", "[]string", ...).
func (e *Editor) InsertField(name, typeExpr, tag string) error {
	structType, ok := e.typeSpec.Type.(*ast.StructType)
	if !ok {
		return invalidEdit(e.className, "insert-field", "class is not struct-shaped", nil)
	}

	typeExprNode, err := parser.ParseExpr(typeExpr)
	if err != nil {
		return invalidEdit(e.className, "insert-field", "field type does not parse", err)
	}

	field := &ast.Field{
		Names: []*ast.Ident{ast.NewIdent(name)},
		Type:  typeExprNode,
	}
	if tag != "" {
		field.Tag = &ast.BasicLit{Kind: token.STRING, Value: "`" + tag + "`"}
	}
	structType.Fields.List = append(structType.Fields.List, field)
	return nil
}

// PrependStatement inserts a statement at the start of a method's body
// (the "wrap method entry" half of entry/exit wrapping).
func (e *Editor) PrependStatement(methodName, stmtSrc string) error {
	fn, err := e.findMethod(methodName)
	if err != nil {
		return err
	}
	stmts, err := parseStatements(e.className, "prepend-statement", stmtSrc)
	if err != nil {
		return err
	}
	fn.Body.List = append(append([]ast.Stmt{}, stmts...), fn.Body.List...)
	return nil
}

// AppendStatement inserts a statement at the end of a method's body. It
// does not run after an earlier return; use WrapReturns to intercept
// returns (the "wrap method exit" half of entry/exit wrapping).
func (e *Editor) AppendStatement(methodName, stmtSrc string) error {
	fn, err := e.findMethod(methodName)
	if err != nil {
		return err
	}
	stmts, err := parseStatements(e.className, "append-statement", stmtSrc)
	if err != nil {
		return err
	}
	fn.Body.List = append(fn.Body.List, stmts...)
	return nil
}

// ReplaceBody replaces a method's entire body with bodySrc, a sequence of
// Go statements.
func (e *Editor) ReplaceBody(methodName, bodySrc string) error {
	fn, err := e.findMethod(methodName)
	if err != nil {
		return err
	}
	stmts, err := parseStatements(e.className, "replace-body", bodySrc)
	if err != nil {
		return err
	}
	fn.Body.List = stmts
	return nil
}

// WrapReturns rewrites every return statement in a method so that
// beforeSrc runs immediately before the computed result is captured and
// afterSrc runs immediately before the (possibly multi-value) result is
// actually returned. Both may reference the method's named results; when
// results are unnamed, WrapReturns synthesizes temporaries named
// "__hotswap_retN" and rewrites the return to use them.
func (e *Editor) WrapReturns(methodName, beforeSrc, afterSrc string) error {
	fn, err := e.findMethod(methodName)
	if err != nil {
		return err
	}

	before, err := parseStatements(e.className, "wrap-returns", beforeSrc)
	if err != nil {
		return err
	}
	after, err := parseStatements(e.className, "wrap-returns", afterSrc)
	if err != nil {
		return err
	}

	resultNames, resultsNamed := namedOrSyntheticResults(fn)

	funcLitDepth := 0
	rewritten := astutil.Apply(fn.Body, func(c *astutil.Cursor) bool {
		if _, ok := c.Node().(*ast.FuncLit); ok {
			funcLitDepth++
			return true
		}
		if funcLitDepth > 0 {
			// Returns inside a nested function literal belong to that
			// literal, not to the method being wrapped.
			return true
		}
		ret, ok := c.Node().(*ast.ReturnStmt)
		if !ok {
			return true
		}

		block := &ast.BlockStmt{}
		block.List = append(block.List, before...)

		if len(ret.Results) > 0 && len(resultNames) == len(ret.Results) {
			tok := token.DEFINE
			if resultsNamed {
				tok = token.ASSIGN
			}
			assign := &ast.AssignStmt{
				Tok: tok,
				Lhs: identSlice(resultNames),
				Rhs: ret.Results,
			}
			block.List = append(block.List, assign)
		}

		block.List = append(block.List, after...)

		if len(resultNames) > 0 {
			block.List = append(block.List, &ast.ReturnStmt{Results: identSlice(resultNames)})
		} else {
			block.List = append(block.List, &ast.ReturnStmt{})
		}

		c.Replace(block)
		return false
	}, func(c *astutil.Cursor) bool {
		if _, ok := c.Node().(*ast.FuncLit); ok {
			funcLitDepth--
		}
		return true
	})

	if body, ok := rewritten.(*ast.BlockStmt); ok {
		fn.Body = body
	}
	return nil
}

// RenameReferences rewrites every identifier reference matching a key in
// nameMap to its mapped value, used when a dependent class's identity
// changes underneath this one.
func (e *Editor) RenameReferences(nameMap map[string]string) error {
	if len(nameMap) == 0 {
		return nil
	}
	astutil.Apply(e.file, func(c *astutil.Cursor) bool {
		id, ok := c.Node().(*ast.Ident)
		if !ok {
			return true
		}
		if to, ok := nameMap[id.Name]; ok {
			id.Name = to
		}
		return true
	}, nil)
	return nil
}

// Bytes renders the edited class back to source, formatting it with
// go/format.Source; if formatting fails the raw printer output is
// returned so callers can still surface a diagnostic against readable
// text.
func (e *Editor) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	cfg := printer.Config{Mode: printer.TabIndent | printer.UseSpaces, Tabwidth: 8}
	if err := cfg.Fprint(&buf, e.fset, e.file); err != nil {
		return nil, invalidEdit(e.className, "render", "AST no longer prints", err)
	}
	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return buf.Bytes(), nil
	}
	return formatted, nil
}

func (e *Editor) findMethod(name string) (*ast.FuncDecl, error) {
	for _, decl := range e.file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name.Name != name {
			continue
		}
		if fn.Recv == nil || len(fn.Recv.List) != 1 {
			continue
		}
		recv := fn.Recv.List[0].Type
		recvName := exprString(e.fset, recv)
		if strings.TrimPrefix(recvName, "*") == e.simpleName {
			return fn, nil
		}
	}
	return nil, unknownMethod(e.className, name)
}

func parseStatements(className, op, src string) ([]ast.Stmt, error) {
	wrapped := "package p\nfunc _() {\n" + src + "\n}\n"
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "<edit>", wrapped, 0)
	if err != nil {
		return nil, invalidEdit(className, op, "statement source does not parse", err)
	}
	fn := file.Decls[0].(*ast.FuncDecl)
	return fn.Body.List, nil
}

// namedOrSyntheticResults returns one identifier per result value and
// whether those identifiers are the function's own named results (Go does
// not allow mixing named and unnamed results within one signature, so this
// is all-or-nothing). For unnamed results it synthesizes fresh names,
// declared with ":=" at first assignment in WrapReturns.
func namedOrSyntheticResults(fn *ast.FuncDecl) ([]*ast.Ident, bool) {
	if fn.Type.Results == nil {
		return nil, false
	}
	named := len(fn.Type.Results.List) > 0 && len(fn.Type.Results.List[0].Names) > 0

	var names []*ast.Ident
	n := 0
	for _, field := range fn.Type.Results.List {
		if len(field.Names) == 0 {
			names = append(names, ast.NewIdent(syntheticResultName(n)))
			n++
			continue
		}
		for _, id := range field.Names {
			names = append(names, id)
			n++
		}
	}
	return names, named
}

func syntheticResultName(i int) string {
	return "__hotswap_ret" + strconv.Itoa(i)
}

func identSlice(idents []*ast.Ident) []ast.Expr {
	out := make([]ast.Expr, len(idents))
	for i, id := range idents {
		out[i] = id
	}
	return out
}

func exprString(fset *token.FileSet, expr ast.Expr) string {
	var buf bytes.Buffer
	cfg := printer.Config{Mode: printer.RawFormat}
	if err := cfg.Fprint(&buf, fset, expr); err != nil {
		return ""
	}
	return buf.String()
}
