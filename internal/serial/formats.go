package serial

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/xirelogy/go-lunar/internal/vm"
	"gopkg.in/yaml.v3"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("serial: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ToJSON encodes a prime value. NaN and infinities have no JSON form.
func ToJSON(v vm.Value, indent bool) (string, error) {
	p, err := ToPlain(v)
	if err != nil {
		return "", err
	}
	if err := finite(p); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("json encode: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// FromJSON decodes JSON text; null decodes to nil.
func FromJSON(s string) (vm.Value, error) {
	var data interface{}
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return vm.Nil(), fmt.Errorf("json decode: %w", err)
	}
	return FromPlain(data)
}

// ToYAML encodes a prime value as a YAML document.
func ToYAML(v vm.Value) (string, error) {
	p, err := ToPlain(v)
	if err != nil {
		return "", err
	}
	out, err := yaml.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("yaml encode: %w", err)
	}
	return string(out), nil
}

// FromYAML decodes the first YAML document in s.
func FromYAML(s string) (vm.Value, error) {
	var data interface{}
	if err := yaml.Unmarshal([]byte(s), &data); err != nil {
		return vm.Nil(), fmt.Errorf("yaml decode: %w", err)
	}
	return FromPlain(data)
}

// EncodeCBOR encodes a prime value in canonical CBOR.
func EncodeCBOR(v vm.Value) ([]byte, error) {
	p, err := ToPlain(v)
	if err != nil {
		return nil, err
	}
	out, err := cborEncMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}
	return out, nil
}

// DecodeCBOR decodes data produced by EncodeCBOR.
func DecodeCBOR(data []byte) (vm.Value, error) {
	var p interface{}
	if err := cbor.Unmarshal(data, &p); err != nil {
		return vm.Nil(), fmt.Errorf("cbor decode: %w", err)
	}
	return FromPlain(p)
}

func finite(p interface{}) error {
	switch v := p.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &NotPrimeError{Reason: fmt.Sprintf("number %s has no JSON representation", vm.FormatNumber(v))}
		}
	case []interface{}:
		for _, elem := range v {
			if err := finite(elem); err != nil {
				return err
			}
		}
	case map[string]interface{}:
		for _, elem := range v {
			if err := finite(elem); err != nil {
				return err
			}
		}
	}
	return nil
}
