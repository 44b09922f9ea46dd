package classform

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/scanner"
	"go/token"
	"reflect"
	"strings"

	"github.com/flywheeldev/hotswap/pkg/errorsx"
)

// ReadForm decodes class source bytes into a ClassForm without loading it
// into any runtime. filename is used only for diagnostics (MalformedClass
// snippets) and may be empty.
func ReadForm(className string, filename string, source []byte) (*ClassForm, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, displayName(filename, className), source, parser.ParseComments)
	if err != nil {
		pos, msg := parsePosition(err)
		snippet := errorsx.NewSnippet(displayName(filename, className), pos.Line, pos.Column, msg)
		return nil, errorsx.MalformedClass(className, msg, snippet)
	}

	typeDecl, genDecl, err := findClassType(file, className)
	if err != nil {
		return nil, errorsx.MalformedClass(className, err.Error(), nil)
	}

	form := &ClassForm{Name: pkgQualifiedName(file, typeDecl.Name.Name)}

	directives := parseDirectives(genDecl.Doc)
	if args, ok := directiveArgs(directives, "extends"); ok && len(args) > 0 {
		form.Super = args[0]
	}
	form.Interfaces = allDirectiveArgs(directives, "implements")
	form.Class = AnnotationSet(allDirectiveArgs(directives, "annotation"))

	structType, _ := typeDecl.Type.(*ast.StructType)
	if structType != nil {
		for _, f := range structType.Fields.List {
			fields, err := readField(fset, f)
			if err != nil {
				return nil, errorsx.MalformedClass(className, err.Error(), nil)
			}
			form.Fields = append(form.Fields, fields...)
		}
	}

	simpleName := typeDecl.Name.Name
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		method, matched := readMethod(fset, fn, simpleName)
		if matched {
			form.Methods = append(form.Methods, method)
		}
	}

	return form, nil
}

func displayName(filename, className string) string {
	if filename != "" {
		return filename
	}
	return className + ".hsc"
}

func parsePosition(err error) (token.Position, string) {
	if el, ok := err.(scanner.ErrorList); ok && len(el) > 0 {
		return el[0].Pos, el[0].Msg
	}
	return token.Position{Line: 0, Column: 0}, err.Error()
}

// findClassType locates the exported type declaration whose name matches
// className's simple (unqualified) part; when no declaration matches, it
// falls back to the first exported type declaration in the file.
func findClassType(file *ast.File, className string) (*ast.TypeSpec, *ast.GenDecl, error) {
	want := simpleName(className)

	var first *ast.TypeSpec
	var firstDecl *ast.GenDecl
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			if !ts.Name.IsExported() {
				continue
			}
			if want != "" && ts.Name.Name == want {
				return ts, gd, nil
			}
			if first == nil {
				first = ts
				firstDecl = gd
			}
		}
	}
	if first != nil {
		return first, firstDecl, nil
	}
	return nil, nil, errNoClassType
}

var errNoClassType = classFormError("no exported type declaration found for class")

type classFormError string

func (e classFormError) Error() string { return string(e) }

func simpleName(className string) string {
	if idx := strings.LastIndexByte(className, '.'); idx >= 0 {
		return className[idx+1:]
	}
	return className
}

func pkgQualifiedName(file *ast.File, typeName string) string {
	pkg := ""
	if file.Name != nil {
		pkg = file.Name.Name
	}
	if pkg == "" {
		return typeName
	}
	return pkg + "." + typeName
}

func readField(fset *token.FileSet, f *ast.Field) ([]Field, error) {
	if len(f.Names) == 0 {
		// embedded field: represented in Super/Interfaces via directives, not as a data field.
		return nil, nil
	}

	var tag reflect.StructTag
	if f.Tag != nil {
		raw := strings.Trim(f.Tag.Value, "`")
		tag = reflect.StructTag(raw)
	}

	out := Field{
		Descriptor: exprString(fset, f.Type),
	}

	hsTag, _ := tag.Lookup("hotswap")
	parts := splitNonEmpty(hsTag, ',')
	var annos AnnotationSet
	for _, p := range parts {
		switch {
		case p == "static":
			out.Static = true
		case strings.HasPrefix(p, "annotation:"):
			annos = append(annos, strings.TrimPrefix(p, "annotation:"))
		}
	}
	out.Annotations = annos

	// A single ast.Field may group multiple names ("a, b int"); each name
	// is its own member and yields its own Field.
	var fields []Field
	for _, ident := range f.Names {
		if isSyntheticName(ident.Name) {
			continue
		}
		field := out
		field.Name = ident.Name
		field.Private = !ident.IsExported()
		fields = append(fields, field)
	}
	return fields, nil
}

func splitNonEmpty(s string, sep byte) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, string(sep))
	var out []string
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// readMethod returns (method, true) when fn is a declared method,
// constructor, or static-convention function belonging to simpleName; it
// returns (_, false) for unrelated functions and for synthetic/initialiser
// members, which are always excluded.
func readMethod(fset *token.FileSet, fn *ast.FuncDecl, simpleName string) (Method, bool) {
	name := fn.Name.Name
	if name == "init" && fn.Recv == nil {
		return Method{}, false
	}
	if isSyntheticName(name) {
		return Method{}, false
	}

	m := Method{Name: name}
	directives := parseDirectives(fn.Doc)
	m.Annotations = AnnotationSet(allDirectiveArgs(directives, "annotation"))
	m.Throws = allDirectiveArgs(directives, "throws")
	m.ParamAnnotations = paramAnnotations(directives)

	matched := false
	switch {
	case fn.Recv != nil && len(fn.Recv.List) == 1:
		recvType := exprString(fset, fn.Recv.List[0].Type)
		recvType = strings.TrimPrefix(recvType, "*")
		if recvType == simpleName {
			matched = true
		}
	case strings.HasPrefix(name, simpleName+"_"):
		m.Static = true
		matched = true
	case name == "New"+simpleName:
		m.Constructor = true
		matched = true
	case name == "new"+simpleName:
		m.Constructor = true
		m.Private = true
		matched = true
	}
	if !matched {
		return Method{}, false
	}

	if !m.Constructor {
		m.Private = !fn.Name.IsExported()
	}

	if fn.Type.Params != nil {
		for _, p := range fn.Type.Params.List {
			descr := exprString(fset, p.Type)
			if len(p.Names) == 0 {
				m.Params = append(m.Params, descr)
				m.ParamNames = append(m.ParamNames, "")
				continue
			}
			for _, n := range p.Names {
				m.Params = append(m.Params, descr)
				m.ParamNames = append(m.ParamNames, n.Name)
			}
		}
	}
	if fn.Type.Results != nil {
		for _, r := range fn.Type.Results.List {
			descr := exprString(fset, r.Type)
			count := len(r.Names)
			if count == 0 {
				count = 1
			}
			for i := 0; i < count; i++ {
				m.Result = append(m.Result, descr)
			}
		}
	}

	return m, true
}

// isSyntheticName reports whether name follows the compiler-generated
// prefix convention; synthetic helper members are always excluded from a
// ClassForm.
func isSyntheticName(name string) bool {
	return strings.HasPrefix(name, "__")
}

func exprString(fset *token.FileSet, expr ast.Expr) string {
	var buf bytes.Buffer
	cfg := printer.Config{Mode: printer.RawFormat}
	if err := cfg.Fprint(&buf, fset, expr); err != nil {
		return ""
	}
	return buf.String()
}
