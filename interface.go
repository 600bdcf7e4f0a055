package dbus

import "slices"

// Interface describes a named bus interface: the methods and signals
// an object exports under that name. It accumulates members in call
// order and holds them for a consumer such as an introspection
// serializer; this layer performs no validation of signature strings
// and no I/O.
//
// Member names are not checked for uniqueness. Duplicate detection,
// if wanted, belongs to a higher layer or to the bus daemon.
type Interface struct {
	name    string
	members []InterfaceMember
}

// InterfaceMember is one exported element of an [Interface], either a
// [Method] or a [Signal].
type InterfaceMember interface {
	// MemberName returns the element's name within the interface.
	MemberName() string
}

// Method describes one exported method.
type Method struct {
	// Name is the method name.
	Name string
	// ArgSpec is the type signature of the method's arguments.
	ArgSpec string
	// ArgNames names the arguments, in signature order.
	ArgNames []string
	// RetSpec is the type signature of the method's return values.
	RetSpec string
}

func (m Method) MemberName() string { return m.Name }

// Signal describes one exported signal.
type Signal struct {
	// Name is the signal name.
	Name string
	// Spec is the type signature of the signal's payload.
	Spec string
}

func (s Signal) MemberName() string { return s.Name }

// NewInterface returns an empty interface description with the given
// name.
func NewInterface(name string) *Interface {
	return &Interface{name: name}
}

// Name returns the interface name.
func (i *Interface) Name() string { return i.name }

// AddMember appends m to the interface's member list.
func (i *Interface) AddMember(m InterfaceMember) {
	i.members = append(i.members, m)
}

// AddMethod appends a method with the given name, argument signature,
// argument names and return signature.
func (i *Interface) AddMethod(name, argspec string, argnames []string, retspec string) {
	i.AddMember(Method{
		Name:     name,
		ArgSpec:  argspec,
		ArgNames: argnames,
		RetSpec:  retspec,
	})
}

// AddSignal appends a signal with the given name and payload
// signature.
func (i *Interface) AddSignal(name, spec string) {
	i.AddMember(Signal{Name: name, Spec: spec})
}

// Members returns the interface's members in the order they were
// added.
func (i *Interface) Members() []InterfaceMember {
	return slices.Clone(i.members)
}
