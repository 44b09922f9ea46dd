// Package diff computes a structural comparison between two class forms:
// the signature differ.
package diff

import (
	"sort"

	"github.com/flywheeldev/hotswap/pkg/classform"
)

// MethodChange describes a method present in both forms under the same
// descriptor (name plus parameter/result shape) whose throws list or
// static-ness differs. A parameter or result change alters the descriptor
// and is reported as a removal plus an addition instead. Compute lists
// annotation changes in Diff.MethodAnnotationsChanged and leaves
// AnnotationsChanged false.
type MethodChange struct {
	Descriptor         string
	AnnotationsChanged bool
}

// FieldChange describes a field whose type changed between forms.
type FieldChange struct {
	Name string
	Old  string
	New  string
}

// Diff is the structured comparison of two ClassForm snapshots of the
// same class identity.
type Diff struct {
	MethodsAdded             []string
	MethodsRemoved           []string
	MethodsSignatureChanged  []MethodChange
	MethodAnnotationsChanged []string
	FieldsAdded              []string
	FieldsRemoved            []string
	FieldsTypeChanged        []FieldChange
	ClassAnnotationsChanged  bool
	SupertypeChanged         bool
	InterfacesChanged        bool
}

// BodyOnly reports whether every difference between the two forms is
// confined to method bodies, i.e. no member set, signature, annotation,
// or type-hierarchy change was observed. ClassForm carries no method-body
// text (see DESIGN.md), so a body-only source edit and a true no-op edit
// both project to this same empty diff; that equivalence is the intended
// behaviour, keeping the fingerprint stable across a no-op edit.
func (d Diff) BodyOnly() bool {
	return len(d.MethodsAdded) == 0 &&
		len(d.MethodsRemoved) == 0 &&
		len(d.MethodsSignatureChanged) == 0 &&
		len(d.MethodAnnotationsChanged) == 0 &&
		len(d.FieldsAdded) == 0 &&
		len(d.FieldsRemoved) == 0 &&
		len(d.FieldsTypeChanged) == 0 &&
		!d.ClassAnnotationsChanged &&
		!d.SupertypeChanged &&
		!d.InterfacesChanged
}

// Empty reports whether the two forms compared equal in every respect
// this differ tracks.
func (d Diff) Empty() bool { return d.BodyOnly() }

// Compute returns the diff from old to new. Compute(old, new) and
// Compute(new, old) are symmetric: the same members appear in Added and
// Removed with the sets swapped, and FieldsTypeChanged entries swap
// Old/New.
func Compute(old, new *classform.ClassForm) Diff {
	var d Diff

	oldMethods := indexMethods(old.Methods)
	newMethods := indexMethods(new.Methods)

	for descr := range newMethods {
		if _, ok := oldMethods[descr]; !ok {
			d.MethodsAdded = append(d.MethodsAdded, descr)
		}
	}
	for descr := range oldMethods {
		if _, ok := newMethods[descr]; !ok {
			d.MethodsRemoved = append(d.MethodsRemoved, descr)
		}
	}
	for descr, om := range oldMethods {
		nm, ok := newMethods[descr]
		if !ok {
			continue
		}
		if !stringsEqual(om.Throws, nm.Throws) || om.Static != nm.Static {
			d.MethodsSignatureChanged = append(d.MethodsSignatureChanged, MethodChange{Descriptor: descr})
		}
		if !annotationsEqual(om.Annotations, nm.Annotations) || !paramAnnotationsEqual(om.ParamAnnotations, nm.ParamAnnotations) {
			d.MethodAnnotationsChanged = append(d.MethodAnnotationsChanged, descr)
		}
	}

	oldFields := indexFields(old.Fields)
	newFields := indexFields(new.Fields)

	for name := range newFields {
		if _, ok := oldFields[name]; !ok {
			d.FieldsAdded = append(d.FieldsAdded, name)
		}
	}
	for name := range oldFields {
		if _, ok := newFields[name]; !ok {
			d.FieldsRemoved = append(d.FieldsRemoved, name)
		}
	}
	for name, of := range oldFields {
		nf, ok := newFields[name]
		if !ok {
			continue
		}
		if of.Descriptor != nf.Descriptor {
			d.FieldsTypeChanged = append(d.FieldsTypeChanged, FieldChange{Name: name, Old: of.Descriptor, New: nf.Descriptor})
		}
	}

	d.ClassAnnotationsChanged = !annotationsEqual(old.Class, new.Class)
	d.SupertypeChanged = old.Super != new.Super
	d.InterfacesChanged = !stringsEqual(sortedCopy(old.Interfaces), sortedCopy(new.Interfaces))

	sort.Strings(d.MethodsAdded)
	sort.Strings(d.MethodsRemoved)
	sort.Strings(d.MethodAnnotationsChanged)
	sort.Strings(d.FieldsAdded)
	sort.Strings(d.FieldsRemoved)
	sort.Slice(d.MethodsSignatureChanged, func(i, j int) bool {
		return d.MethodsSignatureChanged[i].Descriptor < d.MethodsSignatureChanged[j].Descriptor
	})
	sort.Slice(d.FieldsTypeChanged, func(i, j int) bool {
		return d.FieldsTypeChanged[i].Name < d.FieldsTypeChanged[j].Name
	})

	return d
}

func indexMethods(methods []classform.Method) map[string]classform.Method {
	out := make(map[string]classform.Method, len(methods))
	for _, m := range methods {
		descr := descriptor(m)
		out[descr] = m
	}
	return out
}

func descriptor(m classform.Method) string {
	s := m.Name + "("
	for i, p := range m.Params {
		if i > 0 {
			s += ","
		}
		s += p
	}
	s += ")"
	for _, r := range m.Result {
		s += r
	}
	return s
}

func indexFields(fields []classform.Field) map[string]classform.Field {
	out := make(map[string]classform.Field, len(fields))
	for _, f := range fields {
		out[f.Name] = f
	}
	return out
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func annotationsEqual(a, b classform.AnnotationSet) bool {
	return stringsEqual(sortedCopy(a), sortedCopy(b))
}

func paramAnnotationsEqual(a, b map[string]classform.AnnotationSet) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !annotationsEqual(v, ov) {
			return false
		}
	}
	return true
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
