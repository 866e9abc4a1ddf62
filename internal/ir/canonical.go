package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces deterministic JSON for hashing.
// CRITICAL: This is the ONLY serialization that should be used for
// fingerprint computation.
//
// Differences from json.Marshal:
//  1. Object keys are sorted
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. No floats and no null (returns error)
//
// Supported inputs: string, int, int64, bool, []any, map[string]any.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return marshalCanonicalString(buf, val)
	case int:
		fmt.Fprintf(buf, "%d", val)
	case int64:
		fmt.Fprintf(buf, "%d", val)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonicalString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := marshalCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// marshalCanonicalString writes an NFC-normalized JSON string without HTML
// escaping.
func marshalCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	// json.Encoder adds a trailing newline.
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

// canonicalTree converts an operation tree into plain Go values accepted by
// MarshalCanonical. Values are referenced by their definition order so the
// result is independent of pointer identity. Locations are left out: moving
// an operation in the source file does not change what it means.
func canonicalTree(op *Operation) map[string]any {
	ids := make(map[*Value]int)
	return canonicalOp(op, ids)
}

func canonicalOp(op *Operation, ids map[*Value]int) map[string]any {
	operands := make([]any, len(op.operands))
	for i, v := range op.operands {
		id, ok := ids[v]
		if !ok {
			id = -1
		}
		operands[i] = id
	}
	attrs := make([]any, len(op.attrs))
	for i, na := range op.attrs {
		attrs[i] = []any{na.Name, na.Value.String()}
	}
	results := make([]any, len(op.results))
	for i, r := range op.results {
		ids[r] = len(ids)
		results[i] = []any{r.name, string(r.typ)}
	}
	regions := make([]any, len(op.regions))
	for i, r := range op.regions {
		blocks := make([]any, len(r.blocks))
		for j, b := range r.blocks {
			args := make([]any, len(b.args))
			for k, a := range b.args {
				ids[a] = len(ids)
				args[k] = []any{a.name, string(a.typ)}
			}
			ops := make([]any, len(b.ops))
			for k, nested := range b.ops {
				ops[k] = canonicalOp(nested, ids)
			}
			blocks[j] = map[string]any{"args": args, "ops": ops}
		}
		regions[i] = blocks
	}
	return map[string]any{
		"name":     op.name,
		"operands": operands,
		"attrs":    attrs,
		"results":  results,
		"regions":  regions,
	}
}
