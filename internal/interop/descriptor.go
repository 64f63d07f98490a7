package interop

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/xirelogy/go-lunar/internal/vm"
)

// MemberKind is the closed set of ways a host member is exposed.
type MemberKind int

const (
	MemberMethod MemberKind = iota
	MemberProperty
	MemberField
	MemberIndexer
)

func (k MemberKind) String() string {
	switch k {
	case MemberMethod:
		return "method"
	case MemberProperty:
		return "property"
	case MemberField:
		return "field"
	default:
		return "indexer"
	}
}

// Access is a bit set of the operations a member permits.
type Access int

const (
	AccessRead Access = 1 << iota
	AccessWrite
	AccessExecute
)

// Policy controls how a host type is exposed.
type Policy struct {
	// ReadOnly rejects script writes to fields, properties and indexers.
	ReadOnly bool
	// Hide lists Go member names that scripts cannot see.
	Hide []string
	// Overloads groups several Go methods under one script name.
	Overloads map[string][]string
	// Properties exposes zero-argument methods without a SetX pair as
	// read-only properties.
	Properties []string
}

// Member describes one exposed member of a host type.
type Member struct {
	Name   string
	Kind   MemberKind
	Access Access

	methods []reflect.Method
	setter  *reflect.Method
	field   []int
}

// Descriptor is the cached, immutable description of a host type.
type Descriptor struct {
	typ     reflect.Type
	policy  Policy
	members map[string]*Member
	names   []string
	indexed bool
}

var (
	registryMu sync.Mutex
	registry   = map[reflect.Type]*Descriptor{}
)

// Describe returns the descriptor for t, building it on first use. Later
// calls return the cached descriptor and ignore policy.
func Describe(t reflect.Type, policy Policy) *Descriptor {
	registryMu.Lock()
	defer registryMu.Unlock()
	if d, ok := registry[t]; ok {
		return d
	}
	d := build(t, policy)
	registry[t] = d
	return d
}

// Lookup returns the cached descriptor of t, if any.
func Lookup(t reflect.Type) (*Descriptor, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	d, ok := registry[t]
	return d, ok
}

func describeDefault(t reflect.Type) *Descriptor {
	return Describe(t, Policy{})
}

func (d *Descriptor) Type() reflect.Type { return d.typ }

// Name returns the script-visible type name.
func (d *Descriptor) Name() string { return d.typ.String() }

func (d *Descriptor) Policy() Policy { return d.policy }

// Member returns the member exposed under name.
func (d *Descriptor) Member(name string) (*Member, bool) {
	m, ok := d.members[name]
	return m, ok
}

// Members lists the exposed members in name order. Aliases are included.
func (d *Descriptor) Members() []*Member {
	out := make([]*Member, 0, len(d.names))
	for _, name := range d.names {
		out = append(out, d.members[name])
	}
	return out
}

func build(t reflect.Type, policy Policy) *Descriptor {
	d := &Descriptor{typ: t, policy: policy, members: map[string]*Member{}}
	hidden := map[string]bool{}
	for _, name := range policy.Hide {
		hidden[name] = true
	}
	props := map[string]bool{}
	for _, name := range policy.Properties {
		props[name] = true
	}

	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(st) {
			if !f.IsExported() || f.Anonymous || hidden[f.Name] {
				continue
			}
			name := f.Name
			if tag, ok := f.Tag.Lookup("lunar"); ok {
				if tag == "-" {
					continue
				}
				if tag != "" {
					name = tag
				}
			}
			access := AccessRead
			if !policy.ReadOnly {
				access |= AccessWrite
			}
			d.add(name, &Member{Name: name, Kind: MemberField, Access: access, field: f.Index})
		}
	}

	methods := map[string]reflect.Method{}
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if hidden[m.Name] {
			continue
		}
		methods[m.Name] = m
	}
	for name, m := range methods {
		if isGetter(m) {
			setter, ok := methods["Set"+name]
			if ok && isSetterFor(setter, m) {
				access := AccessRead
				if !policy.ReadOnly {
					access |= AccessWrite
				}
				s := setter
				d.add(name, &Member{Name: name, Kind: MemberProperty, Access: access, methods: []reflect.Method{m}, setter: &s})
				continue
			}
			if props[name] {
				d.add(name, &Member{Name: name, Kind: MemberProperty, Access: AccessRead, methods: []reflect.Method{m}})
				continue
			}
		}
		d.add(name, &Member{Name: name, Kind: MemberMethod, Access: AccessExecute, methods: []reflect.Method{m}})
	}
	for script, goNames := range policy.Overloads {
		group := &Member{Name: script, Kind: MemberMethod, Access: AccessExecute}
		for _, goName := range goNames {
			if m, ok := methods[goName]; ok {
				group.methods = append(group.methods, m)
			}
		}
		if len(group.methods) > 0 {
			d.members[script] = group
		}
	}

	switch container(t).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		d.indexed = true
		access := AccessRead
		if !policy.ReadOnly {
			access |= AccessWrite
		}
		d.members["[]"] = &Member{Name: "[]", Kind: MemberIndexer, Access: access}
	}

	for name := range d.members {
		d.names = append(d.names, name)
	}
	sort.Strings(d.names)
	return d
}

// add registers m under its name and, when free, a lower-camel alias.
func (d *Descriptor) add(name string, m *Member) {
	if _, exists := d.members[name]; !exists {
		d.members[name] = m
	}
	if alias := lowerFirst(name); alias != name {
		if _, exists := d.members[alias]; !exists {
			d.members[alias] = m
		}
	}
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsLower(r) {
		return s
	}
	// keep acronyms such as ID or URL intact
	if len(s) > n {
		next, _ := utf8.DecodeRuneInString(s[n:])
		if unicode.IsUpper(next) {
			return s
		}
	}
	return string(unicode.ToLower(r)) + s[n:]
}

func isGetter(m reflect.Method) bool {
	ft := m.Type
	if ft.NumIn() != 1 {
		return false
	}
	switch ft.NumOut() {
	case 1:
		return ft.Out(0) != errorType
	case 2:
		return ft.Out(1) == errorType
	}
	return false
}

func isSetterFor(setter, getter reflect.Method) bool {
	st := setter.Type
	if st.NumIn() != 2 || st.In(1) != getter.Type.Out(0) {
		return false
	}
	return st.NumOut() == 0 || (st.NumOut() == 1 && st.Out(0) == errorType)
}

// container dereferences pointer types to the indexed value type.
func container(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func signature(name string, ft reflect.Type, skip int) string {
	parts := make([]string, 0, ft.NumIn())
	for i := skip; i < ft.NumIn(); i++ {
		in := ft.In(i)
		if ft.IsVariadic() && i == ft.NumIn()-1 {
			parts = append(parts, "..."+in.Elem().String())
			continue
		}
		parts = append(parts, in.String())
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// wrap exposes a host object as userdata described by its type.
func wrap(obj interface{}) vm.Value {
	return vm.UserDataValue(vm.NewUserData(obj, describeDefault(reflect.TypeOf(obj))))
}
