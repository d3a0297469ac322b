package schema

import (
	"encoding/binary"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/emmsync/internal/doc"
)

func expected(v doc.Value, want string) *Error {
	return Errorf("%s expected but got %s.", want, doc.TypeName(v))
}

func asBool(v doc.Value) (bool, error) {
	b, ok := v.(doc.Bool)
	if !ok {
		return false, expected(v, "Boolean")
	}
	return bool(b), nil
}

// asInt also accepts a decimal string, the JSON encoding of int64 fields
// returned by the management API.
func asInt(v doc.Value) (int64, error) {
	switch n := v.(type) {
	case doc.Int:
		return int64(n), nil
	case doc.String:
		i, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil {
			return 0, Errorf("'%s' is not a valid integer.", string(n))
		}
		return i, nil
	}
	return 0, expected(v, "Integer")
}

func asString(v doc.Value) (string, error) {
	s, ok := v.(doc.String)
	if !ok {
		return "", expected(v, "String")
	}
	return string(s), nil
}

func asArray(v doc.Value) (doc.Array, error) {
	a, ok := v.(doc.Array)
	if !ok {
		return nil, expected(v, "Array")
	}
	return a, nil
}

func asObject(v doc.Value) (doc.Object, error) {
	o, ok := v.(doc.Object)
	if !ok {
		return nil, expected(v, "Object")
	}
	return o, nil
}

func hashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

func hashInt(n int64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(n))
	return xxhash.Sum64(b[:])
}

func hashBool(b bool) uint64 {
	if b {
		return hashInt(1)
	}
	return hashInt(0)
}

// hashNamed binds a value hash to a name so that XOR aggregation over
// properties or keys stays order independent without letting equal values
// under different names cancel out.
func hashNamed(name string, value uint64) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(name)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], value)
	_, _ = d.Write(b[:])
	return d.Sum64()
}
