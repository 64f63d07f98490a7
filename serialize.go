package lunar

import (
	"github.com/xirelogy/go-lunar/internal/serial"
)

// Serialize renders a prime value (nil, booleans, numbers, strings and
// acyclic tables of those without metatables) as script source that
// evaluates back to an equal value.
func Serialize(v Value) (string, error) {
	return serial.Dump(v.v)
}

// IsPrime reports whether v can be serialized or stored.
func IsPrime(v Value) bool {
	return serial.IsPrime(v.v)
}

// ToJSON encodes a prime value. Sequences become arrays and other tables
// objects.
func ToJSON(v Value, indent bool) (string, error) {
	return serial.ToJSON(v.v, indent)
}

// FromJSON decodes JSON text into script values; null becomes nil.
func FromJSON(s string) (Value, error) {
	v, err := serial.FromJSON(s)
	if err != nil {
		return Value{}, err
	}
	return Value{v: v}, nil
}

// ToYAML encodes a prime value as a YAML document.
func ToYAML(v Value) (string, error) {
	return serial.ToYAML(v.v)
}

// FromYAML decodes a YAML document into script values.
func FromYAML(s string) (Value, error) {
	v, err := serial.FromYAML(s)
	if err != nil {
		return Value{}, err
	}
	return Value{v: v}, nil
}

// ToCBOR encodes a prime value in canonical CBOR.
func ToCBOR(v Value) ([]byte, error) {
	return serial.EncodeCBOR(v.v)
}

// FromCBOR decodes CBOR data produced by ToCBOR.
func FromCBOR(data []byte) (Value, error) {
	v, err := serial.DecodeCBOR(data)
	if err != nil {
		return Value{}, err
	}
	return Value{v: v}, nil
}
