package classform

import "strings"

// Policy enumerates which signature elements participate in a
// Fingerprint. The zero value includes no signature element at all; the
// default `fingerprint-policy` is DefaultPolicy. No policy covers method
// bodies (this engine has no bytecode bodies to hash in the first place).
type Policy struct {
	Methods                    bool
	PrivateMethods             bool
	StaticMethods              bool
	MethodAnnotations          bool
	MethodParameterAnnotations bool
	MethodExceptions           bool
	Constructors               bool
	PrivateConstructors        bool
	ClassAnnotations           bool
	Interfaces                 bool
	SuperClass                 bool
	Fields                     bool
	StaticFields               bool
	FieldAnnotations           bool
}

// DefaultPolicy includes methods, static methods, constructors, fields,
// static fields, interfaces and super-class. Private methods, private
// constructors, annotations and exceptions are excluded; fields are
// included whatever their visibility. Callers may opt in to private
// methods by setting PrivateMethods.
func DefaultPolicy() Policy {
	return Policy{
		Methods:      true,
		StaticMethods: true,
		Constructors:  true,
		Interfaces:    true,
		SuperClass:    true,
		Fields:        true,
		StaticFields:  true,
	}
}

// AllPolicy includes every signature element; useful when callers want
// fingerprints sensitive to any structural or annotation change at all.
func AllPolicy() Policy {
	return Policy{
		Methods: true, PrivateMethods: true, StaticMethods: true,
		MethodAnnotations: true, MethodParameterAnnotations: true, MethodExceptions: true,
		Constructors: true, PrivateConstructors: true,
		ClassAnnotations: true, Interfaces: true, SuperClass: true,
		Fields: true, StaticFields: true, FieldAnnotations: true,
	}
}

// ParsePolicy maps a config string onto a Policy. Two named presets are
// recognised: "" and "structural" return DefaultPolicy, "all" returns
// AllPolicy. Anything else is parsed as a comma-separated list of
// signature-element names: methods, private-methods, static-methods,
// method-annotations, method-parameter-annotations, method-exceptions,
// constructors, private-constructors, class-annotations, interfaces,
// super-class, fields, static-fields, field-annotations. Unrecognised
// tokens are ignored.
func ParsePolicy(name string) Policy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "structural":
		return DefaultPolicy()
	case "all":
		return AllPolicy()
	}

	var p Policy
	for _, tok := range strings.Split(name, ",") {
		switch strings.ToLower(strings.TrimSpace(tok)) {
		case "methods":
			p.Methods = true
		case "private-methods":
			p.PrivateMethods = true
		case "static-methods":
			p.StaticMethods = true
		case "method-annotations":
			p.MethodAnnotations = true
		case "method-parameter-annotations":
			p.MethodParameterAnnotations = true
		case "method-exceptions":
			p.MethodExceptions = true
		case "constructors":
			p.Constructors = true
		case "private-constructors":
			p.PrivateConstructors = true
		case "class-annotations":
			p.ClassAnnotations = true
		case "interfaces":
			p.Interfaces = true
		case "super-class":
			p.SuperClass = true
		case "fields":
			p.Fields = true
		case "static-fields":
			p.StaticFields = true
		case "field-annotations":
			p.FieldAnnotations = true
		}
	}
	return p
}
