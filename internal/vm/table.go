package vm

import (
	"math"
)

// Table is the script's associative array. Keys 1..n live in the array part;
// every other key lives in the hash part, which keeps insertion order so
// traversal with next is deterministic. The two parts never share a key.
type Table struct {
	arr     []Value
	entries []tableEntry
	index   map[hashKey]int
	dead    int
	meta    *Table
}

type tableEntry struct {
	key  Value
	val  Value
	live bool
}

type hashKey struct {
	kind Kind
	num  float64
	str  string
	ref  interface{}
}

func NewTable(narr, nhash int) *Table {
	t := &Table{}
	if narr > 0 {
		t.arr = make([]Value, 0, narr)
	}
	if nhash > 0 {
		t.entries = make([]tableEntry, 0, nhash)
		t.index = make(map[hashKey]int, nhash)
	}
	return t
}

// NewArray builds a table whose array part holds vals.
func NewArray(vals ...Value) *Table {
	t := NewTable(len(vals), 0)
	for _, v := range vals {
		t.Append(v)
	}
	return t
}

func (t *Table) Metatable() *Table     { return t.meta }
func (t *Table) SetMetatable(m *Table) { t.meta = m }

func makeHashKey(k Value) hashKey {
	switch k.Kind {
	case KindBool:
		if k.B {
			return hashKey{kind: KindBool, num: 1}
		}
		return hashKey{kind: KindBool}
	case KindNumber:
		n := k.Num
		if n == 0 {
			n = 0 // -0 and 0 are the same key
		}
		return hashKey{kind: KindNumber, num: n}
	case KindString:
		return hashKey{kind: KindString, str: k.Str}
	case KindTable:
		return hashKey{kind: KindTable, ref: k.Tab}
	case KindFunction:
		return hashKey{kind: KindFunction, ref: k.Func}
	case KindUserData:
		return hashKey{kind: KindUserData, ref: k.UD.identity()}
	case KindCoroutine:
		return hashKey{kind: KindCoroutine, ref: k.Co}
	}
	return hashKey{}
}

// arrayIndex reports the 0-based array position for integral keys.
func arrayIndex(k Value) (int, bool) {
	if k.Kind != KindNumber {
		return 0, false
	}
	n := k.Num
	if n < 1 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false
	}
	return int(n) - 1, true
}

// Get reads key without consulting the metatable.
func (t *Table) Get(key Value) Value {
	key = key.First()
	if i, ok := arrayIndex(key); ok && i < len(t.arr) {
		return t.arr[i]
	}
	if key.Kind == KindNil || t.index == nil {
		return Nil()
	}
	if pos, ok := t.index[makeHashKey(key)]; ok && t.entries[pos].live {
		return t.entries[pos].val
	}
	return Nil()
}

// GetString is a shortcut for string keys.
func (t *Table) GetString(key string) Value {
	return t.Get(String(key))
}

// Set writes key without consulting the metatable. A nil value removes the
// key; nil and NaN keys are rejected.
func (t *Table) Set(key, val Value) error {
	key, val = key.First(), val.First()
	switch {
	case key.Kind == KindNil:
		return &IndexError{Message: "table index is nil"}
	case key.Kind == KindNumber && math.IsNaN(key.Num):
		return &IndexError{Message: "table index is NaN"}
	}
	if i, ok := arrayIndex(key); ok {
		switch {
		case i < len(t.arr):
			t.arr[i] = val
			if val.Kind == KindNil && i == len(t.arr)-1 {
				t.trimArray()
			}
			return nil
		case i == len(t.arr) && val.Kind != KindNil:
			t.removeHash(key)
			t.arr = append(t.arr, val)
			t.migrate()
			return nil
		}
	}
	if val.Kind == KindNil {
		t.removeHash(key)
		return nil
	}
	t.setHash(key, val)
	return nil
}

// SetString is a shortcut for string keys.
func (t *Table) SetString(key string, val Value) {
	_ = t.Set(String(key), val)
}

// Append stores v at #t+1.
func (t *Table) Append(v Value) {
	_ = t.Set(Number(float64(len(t.arr)+1)), v)
}

func (t *Table) trimArray() {
	n := len(t.arr)
	for n > 0 && t.arr[n-1].Kind == KindNil {
		n--
	}
	for i := n; i < len(t.arr); i++ {
		t.arr[i] = Value{}
	}
	t.arr = t.arr[:n]
}

// migrate pulls the keys following the array part out of the hash part.
func (t *Table) migrate() {
	if t.index == nil {
		return
	}
	for {
		next := Number(float64(len(t.arr) + 1))
		pos, ok := t.index[makeHashKey(next)]
		if !ok || !t.entries[pos].live {
			return
		}
		t.arr = append(t.arr, t.entries[pos].val)
		t.removeHash(next)
	}
}

func (t *Table) setHash(key, val Value) {
	if t.index == nil {
		t.index = make(map[hashKey]int)
	}
	hk := makeHashKey(key)
	if pos, ok := t.index[hk]; ok {
		e := &t.entries[pos]
		if !e.live {
			e.live = true
			t.dead--
		}
		e.val = val
		return
	}
	if t.dead > 8 && t.dead*2 > len(t.entries) {
		t.compact()
	}
	t.index[hk] = len(t.entries)
	t.entries = append(t.entries, tableEntry{key: key, val: val, live: true})
}

// removeHash marks an entry dead but keeps its slot so an in-progress
// traversal can continue from the removed key.
func (t *Table) removeHash(key Value) {
	if t.index == nil {
		return
	}
	if pos, ok := t.index[makeHashKey(key)]; ok && t.entries[pos].live {
		t.entries[pos].live = false
		t.entries[pos].val = Value{}
		t.dead++
	}
}

func (t *Table) compact() {
	live := make([]tableEntry, 0, len(t.entries)-t.dead)
	index := make(map[hashKey]int, len(t.entries)-t.dead)
	for _, e := range t.entries {
		if !e.live {
			continue
		}
		index[makeHashKey(e.key)] = len(live)
		live = append(live, e)
	}
	t.entries, t.index, t.dead = live, index, 0
}

// Len returns the border of the array part.
func (t *Table) Len() int {
	return len(t.arr)
}

// HashLen returns the number of live keys in the hash part.
func (t *Table) HashLen() int {
	return len(t.entries) - t.dead
}

// Next returns the key/value pair following key in traversal order; a nil
// key starts the traversal. ok is false once the traversal is complete.
func (t *Table) Next(key Value) (Value, Value, bool, error) {
	key = key.First()
	start := 0
	if key.Kind != KindNil {
		if i, isIdx := arrayIndex(key); isIdx && i < len(t.arr) {
			start = i + 1
		} else {
			pos, found := -1, false
			if t.index != nil {
				pos, found = t.index[makeHashKey(key)]
			}
			switch {
			case found:
				start = len(t.arr) + pos + 1
			case isIdx:
				// the array part shrank under the traversal
				start = len(t.arr)
			default:
				return Nil(), Nil(), false, &IndexError{Message: "invalid key to 'next'"}
			}
		}
	}
	for i := start; i < len(t.arr); i++ {
		if t.arr[i].Kind != KindNil {
			return Number(float64(i + 1)), t.arr[i], true, nil
		}
	}
	from := start - len(t.arr)
	if from < 0 {
		from = 0
	}
	for pos := from; pos < len(t.entries); pos++ {
		if e := t.entries[pos]; e.live {
			return e.key, e.val, true, nil
		}
	}
	return Nil(), Nil(), false, nil
}

// ForEach visits every pair in traversal order until fn returns false.
func (t *Table) ForEach(fn func(k, v Value) bool) {
	for i, v := range t.arr {
		if v.Kind == KindNil {
			continue
		}
		if !fn(Number(float64(i+1)), v) {
			return
		}
	}
	for _, e := range t.entries {
		if e.live && !fn(e.key, e.val) {
			return
		}
	}
}

// Insert shifts the array part up and stores v at pos (1-based).
func (t *Table) Insert(pos int, v Value) error {
	n := len(t.arr)
	if pos < 1 || pos > n+1 {
		return &IndexError{Message: "position out of bounds"}
	}
	if v.Kind == KindNil {
		return nil
	}
	t.arr = append(t.arr, Value{})
	copy(t.arr[pos:], t.arr[pos-1:n])
	t.arr[pos-1] = v.First()
	t.migrate()
	return nil
}

// Remove deletes the element at pos (1-based) and shifts the rest down.
func (t *Table) Remove(pos int) (Value, error) {
	n := len(t.arr)
	if n == 0 {
		return Nil(), nil
	}
	if pos < 1 || pos > n {
		return Nil(), &IndexError{Message: "position out of bounds"}
	}
	v := t.arr[pos-1]
	copy(t.arr[pos-1:], t.arr[pos:])
	t.arr[n-1] = Value{}
	t.arr = t.arr[:n-1]
	t.trimArray()
	return v, nil
}

// ArrayPart exposes the array part for read-only bulk access.
func (t *Table) ArrayPart() []Value {
	return t.arr
}

func (t *Table) metamethod(event string) Value {
	if t == nil || t.meta == nil {
		return Nil()
	}
	return t.meta.GetString(event)
}
