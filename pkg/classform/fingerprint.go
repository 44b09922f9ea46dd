package classform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a deterministic string digest of a ClassForm, computed
// over a canonical (sorted, policy-filtered) projection.
type Fingerprint string

// ComputeFingerprint projects form through policy into a canonical
// representation and hashes it with xxhash. Two ClassForm values with
// equal projected structures always produce equal fingerprints, across
// runs and regardless of declaration order in the source.
func ComputeFingerprint(form *ClassForm, policy Policy) Fingerprint {
	var b strings.Builder
	writeProjection(&b, form, policy)

	sum := xxhash.Sum64String(b.String())
	return Fingerprint(fmt.Sprintf("fp:%016x", sum))
}

func writeProjection(b *strings.Builder, form *ClassForm, p Policy) {
	b.WriteString("name=")
	b.WriteString(form.Name)
	b.WriteByte('\n')

	if p.SuperClass {
		b.WriteString("super=")
		b.WriteString(form.Super)
		b.WriteByte('\n')
	}

	if p.Interfaces {
		ifaces := sortedCopy(form.Interfaces)
		b.WriteString("interfaces=")
		b.WriteString(strings.Join(ifaces, ","))
		b.WriteByte('\n')
	}

	if p.ClassAnnotations {
		b.WriteString("class-annotations=")
		b.WriteString(strings.Join(sortedCopy(form.Class), ","))
		b.WriteByte('\n')
	}

	writeFields(b, form.Fields, p)
	writeMethods(b, form.Methods, p)
}

func writeFields(b *strings.Builder, fields []Field, p Policy) {
	type row struct {
		key  string
		text string
	}
	var rows []row
	for _, f := range fields {
		// "fields"/"static-fields" are the only field-level filters (no
		// separate private-field toggle); visibility is not gated here.
		if f.Static && !p.StaticFields {
			continue
		}
		if !f.Static && !p.Fields {
			continue
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "field:%s:%s:static=%t", f.Name, f.Descriptor, f.Static)
		if p.FieldAnnotations {
			fmt.Fprintf(&sb, ":annotations=%s", strings.Join(sortedCopy(f.Annotations), "+"))
		}
		rows = append(rows, row{key: f.Name + "\x00" + f.Descriptor, text: sb.String()})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })
	for _, r := range rows {
		b.WriteString(r.text)
		b.WriteByte('\n')
	}
}

func writeMethods(b *strings.Builder, methods []Method, p Policy) {
	type row struct {
		key  string
		text string
	}
	var rows []row
	for _, m := range methods {
		if m.Constructor {
			if !p.Constructors {
				continue
			}
			if m.Private && !p.PrivateConstructors {
				continue
			}
		} else {
			if !p.Methods {
				continue
			}
			if m.Private && !p.PrivateMethods {
				continue
			}
			if m.Static && !p.StaticMethods {
				continue
			}
		}

		descriptor := m.Name + "(" + strings.Join(m.Params, ",") + ")" + strings.Join(m.Result, ",")

		var sb strings.Builder
		fmt.Fprintf(&sb, "method:%s:static=%t:ctor=%t", descriptor, m.Static, m.Constructor)

		if p.MethodAnnotations {
			fmt.Fprintf(&sb, ":annotations=%s", strings.Join(sortedCopy(m.Annotations), "+"))
		}
		if p.MethodExceptions {
			fmt.Fprintf(&sb, ":throws=%s", strings.Join(sortedCopy(m.Throws), "+"))
		}
		if p.MethodParameterAnnotations {
			fmt.Fprintf(&sb, ":params=%s", paramAnnotationKey(m))
		}

		rows = append(rows, row{key: descriptor, text: sb.String()})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })
	for _, r := range rows {
		b.WriteString(r.text)
		b.WriteByte('\n')
	}
}

func paramAnnotationKey(m Method) string {
	if len(m.ParamAnnotations) == 0 {
		return ""
	}
	names := make([]string, 0, len(m.ParamAnnotations))
	for name := range m.ParamAnnotations {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		parts = append(parts, name+"="+strings.Join(sortedCopy(m.ParamAnnotations[name]), "+"))
	}
	return strings.Join(parts, ";")
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

// SourceHash is the xxhash digest of raw source bytes, used by the
// transformer pipeline to cache transformed output keyed by
// (class-name, source-bytes-hash).
func SourceHash(source []byte) string {
	return strconv.FormatUint(xxhash.Sum64(source), 16)
}
