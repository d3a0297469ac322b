package store

import (
	"fmt"

	"github.com/roach88/emmsync/internal/doc"
)

// marshalDocument converts a document to canonical JSON TEXT for storage
// and returns its content hash.
func marshalDocument(obj doc.Object) (string, string, error) {
	if obj == nil {
		obj = doc.Object{}
	}
	data, err := doc.MarshalCanonical(obj)
	if err != nil {
		return "", "", fmt.Errorf("marshal document: %w", err)
	}
	hash, err := doc.ContentHash(obj)
	if err != nil {
		return "", "", fmt.Errorf("marshal document: %w", err)
	}
	return string(data), hash, nil
}

// unmarshalDocument parses stored JSON TEXT. Large integers survive the round
// trip because doc.Parse decodes numbers with json.Number.
func unmarshalDocument(data string) (doc.Object, error) {
	if data == "" || data == "{}" {
		return doc.Object{}, nil
	}
	v, err := doc.Parse([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	obj, ok := v.(doc.Object)
	if !ok {
		return nil, fmt.Errorf("unmarshal document: %s is not an object", doc.TypeName(v))
	}
	return obj, nil
}
