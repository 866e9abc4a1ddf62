package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/roach88/hwpipe/internal/ir"
)

// AnnotationsAttr is the root attribute collecting all annotations.
const AnnotationsAttr = "annotations"

// applyAnnotations parses every annotation buffer and appends the
// annotations, in order, to the root's annotations array.
func applyAnnotations(root *ir.Operation, symbols map[string]*ir.Operation, sources []AnnotationSource, raw bool) error {
	if len(sources) == 0 {
		return nil
	}
	var all ir.ArrayAttr
	if existing, ok := root.Attr(AnnotationsAttr); ok {
		if arr, isArr := existing.(ir.ArrayAttr); isArr {
			all = append(all, arr...)
		}
	}
	for _, src := range sources {
		annos, err := parseAnnotations(src, symbols, raw)
		if err != nil {
			return err
		}
		all = append(all, annos...)
	}
	root.SetAttr(AnnotationsAttr, all)
	return nil
}

func parseAnnotations(src AnnotationSource, symbols map[string]*ir.Operation, raw bool) (ir.ArrayAttr, error) {
	dec := json.NewDecoder(strings.NewReader(src.Text))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, jsonError(src, err, dec.InputOffset())
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, annotationError(src, 0, "annotations must be a JSON array")
	}

	var out ir.ArrayAttr
	for dec.More() {
		offset := skipSeparators(src.Text, int(dec.InputOffset()))
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, jsonError(src, err, int64(offset))
		}
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, annotationError(src, offset, "annotation must be a JSON object")
		}
		class, ok := obj["class"].(string)
		if !ok {
			return nil, annotationError(src, offset, "annotation is missing a string \"class\" field")
		}
		if !raw {
			target, ok := obj["target"].(string)
			if !ok {
				return nil, annotationError(src, offset, "annotation %q is missing a string \"target\" field", class)
			}
			if err := resolveTarget(target, symbols); err != nil {
				return nil, annotationError(src, offset, "annotation %q: %v", class, err)
			}
		}
		attr, err := jsonToAttr(obj)
		if err != nil {
			return nil, annotationError(src, offset, "annotation %q: %v", class, err)
		}
		out = append(out, attr)
	}
	if _, err := dec.Token(); err != nil {
		return nil, jsonError(src, err, dec.InputOffset())
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, annotationError(src, int(dec.InputOffset()), "unexpected data after annotation array")
	}
	return out, nil
}

// resolveTarget checks a legacy target of the form "~Circuit" or
// "~Circuit|Module" (optionally followed by ">ref").
func resolveTarget(target string, symbols map[string]*ir.Operation) error {
	if !strings.HasPrefix(target, "~") {
		return fmt.Errorf("target %q must start with '~'", target)
	}
	path := strings.TrimPrefix(target, "~")
	if i := strings.IndexByte(path, '>'); i >= 0 {
		path = path[:i]
	}
	circuit, module, hasModule := strings.Cut(path, "|")
	if circuit == "" {
		return fmt.Errorf("target %q names no circuit", target)
	}
	if _, ok := symbols[circuit]; !ok {
		return fmt.Errorf("target %q: unknown circuit @%s", target, circuit)
	}
	if hasModule {
		if _, ok := symbols[module]; !ok {
			return fmt.Errorf("target %q: unknown module @%s", target, module)
		}
	}
	return nil
}

// jsonToAttr converts a decoded JSON value into an attribute. Object keys
// are sorted; null members are dropped.
func jsonToAttr(v any) (ir.Attribute, error) {
	switch val := v.(type) {
	case string:
		return ir.StringAttr(val), nil
	case bool:
		return ir.BoolAttr(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return ir.IntAttr(i), nil
		}
		return ir.StringAttr(val.String()), nil
	case []any:
		arr := make(ir.ArrayAttr, 0, len(val))
		for _, e := range val {
			if e == nil {
				continue
			}
			a, err := jsonToAttr(e)
			if err != nil {
				return nil, err
			}
			arr = append(arr, a)
		}
		return arr, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k, e := range val {
			if e != nil {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		dict := make(ir.DictAttr, 0, len(keys))
		for _, k := range keys {
			a, err := jsonToAttr(val[k])
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			dict = append(dict, ir.NamedAttribute{Name: k, Value: a})
		}
		return dict, nil
	}
	return nil, fmt.Errorf("unsupported JSON value %v", v)
}

func jsonError(src AnnotationSource, err error, fallback int64) error {
	offset := fallback
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syn):
		offset = syn.Offset
	case errors.As(err, &typ):
		offset = typ.Offset
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		offset = int64(len(src.Text))
	}
	pe := annotationError(src, int(offset), "invalid annotation JSON: %v", err)
	pe.Err = err
	return pe
}

func annotationError(src AnnotationSource, offset int, format string, args ...any) *ParseError {
	line, col := lineCol(src.Text, offset)
	return newParseError(ir.FileLineCol(src.Name, line, col), nil, format, args...)
}

// skipSeparators advances past whitespace and a comma so that offsets point
// at the first character of the next value.
func skipSeparators(text string, offset int) int {
	for offset < len(text) {
		switch text[offset] {
		case ' ', '\t', '\r', '\n', ',':
			offset++
		default:
			return offset
		}
	}
	return offset
}

// lineCol converts a byte offset into a 1-based line and column.
func lineCol(text string, offset int) (int, int) {
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}
	before := []byte(text[:offset])
	line := bytes.Count(before, []byte{'\n'}) + 1
	col := offset - bytes.LastIndexByte(before, '\n')
	return line, col
}
