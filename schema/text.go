package schema

import (
	"fmt"
	"sort"

	"github.com/finnur-hlynsson/bitspec/expr"
	"github.com/segmentio/encoding/json"
)

// Error is the SchemaError kind spec.md §7 names, returned for any
// malformed schema text.
type Error struct {
	Path string
	Msg  string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "schema: " + e.Msg
	}
	return fmt.Sprintf("schema: at %s: %s", e.Path, e.Msg)
}

func errAt(path, format string, args ...any) error {
	return &Error{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// allowedKeys lists, per Kind, the case-specific siblings of "type" that
// spec.md §6 recognizes. Any other key in the text form is a SchemaError.
var allowedKeys = map[Kind]map[string]bool{
	KindBin:       keySet("size"),
	KindString:    keySet("size", "encoding"),
	KindMagic:     keySet("magic"),
	KindStruct:    keySet("fields"),
	KindArray:     keySet("element_type", "size", "length"),
	KindEnum:      keySet("by", "map"),
	KindChecksum:  keySet("method", "start_key", "end_key", "target_key"),
	KindConverter: keySet("original_type", "on_read", "on_write"),
	KindEncrypt:   keySet("inner", "key", "size"),
	KindSign:      keySet("inner", "hasher", "signature_key", "signature_position"),
}

func keySet(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// numericEndianKey is the only sibling key the numeric leaf kinds accept:
// an optional "endian" (spec.md §9(a)'s extension point).
var numericEndianKey = keySet("endian")

// Parse implements spec.md §6's parse_schema: text → Schema.
func Parse(text []byte) (*Type, error) {
	var raw json.RawMessage = text
	return parseNode("$", raw)
}

func parseNode(path string, raw json.RawMessage) (*Type, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errAt(path, "not a JSON object: %v", err)
	}

	rawKind, ok := fields["type"]
	if !ok {
		return nil, errAt(path, "missing required %q key", "type")
	}
	var kindStr string
	if err := json.Unmarshal(rawKind, &kindStr); err != nil {
		return nil, errAt(path, "%q must be a string", "type")
	}
	kind := Kind(kindStr)

	if kind.IsFixedWidth() {
		if err := rejectUnknownKeys(path, fields, numericEndianKey); err != nil {
			return nil, err
		}
		t := &Type{Kind: kind}
		if rawEndian, ok := fields["endian"]; ok {
			var e string
			if err := json.Unmarshal(rawEndian, &e); err != nil {
				return nil, errAt(path, "%q must be a string", "endian")
			}
			switch Endian(e) {
			case BigEndian, LittleEndian:
				t.Endian = Endian(e)
			default:
				return nil, errAt(path, "unknown endian %q", e)
			}
		}
		return t, nil
	}

	allowed, known := allowedKeys[kind]
	if !known {
		return nil, errAt(path, "unknown type tag %q", kindStr)
	}
	if err := rejectUnknownKeys(path, fields, allowed); err != nil {
		return nil, err
	}

	switch kind {
	case KindBin:
		size, err := requireSizeExpr(path, fields, "size")
		if err != nil {
			return nil, err
		}
		return &Type{Kind: kind, Size: size}, nil

	case KindString:
		size, err := requireSizeExpr(path, fields, "size")
		if err != nil {
			return nil, err
		}
		enc, err := requireString(path, fields, "encoding")
		if err != nil {
			return nil, err
		}
		switch enc {
		case "utf-8", "ascii", "utf-16le", "utf-16be":
		default:
			return nil, errAt(path, "unsupported string encoding %q", enc)
		}
		return &Type{Kind: kind, Size: size, Encoding: enc}, nil

	case KindMagic:
		raw, ok := fields["magic"]
		if !ok {
			return nil, errAt(path, "missing required %q key", "magic")
		}
		var bytes []byte
		if err := json.Unmarshal(raw, &bytes); err != nil {
			var ints []int
			if err2 := json.Unmarshal(raw, &ints); err2 != nil {
				return nil, errAt(path, "%q must be a byte array or base64 string", "magic")
			}
			bytes = make([]byte, len(ints))
			for i, v := range ints {
				bytes[i] = byte(v)
			}
		}
		return &Type{Kind: kind, MagicBytes: bytes}, nil

	case KindStruct:
		rawFields, ok := fields["fields"]
		if !ok {
			return nil, errAt(path, "missing required %q key", "fields")
		}
		var items []struct {
			Name     string          `json:"name"`
			Type     json.RawMessage `json:"type"`
			Optional bool            `json:"optional"`
		}
		if err := json.Unmarshal(rawFields, &items); err != nil {
			return nil, errAt(path, "%q must be an array of {name,type}: %v", "fields", err)
		}
		fl := NewFieldList()
		for i, it := range items {
			childPath := fmt.Sprintf("%s.fields[%d:%s]", path, i, it.Name)
			if it.Name == "" {
				return nil, errAt(childPath, "field name must not be empty")
			}
			child, err := parseNode(childPath, it.Type)
			if err != nil {
				return nil, err
			}
			if _, exists := fl.Get(it.Name); exists {
				return nil, errAt(childPath, "duplicate field name %q", it.Name)
			}
			fl.Set(it.Name, &Field{Type: child, Optional: it.Optional})
		}
		return &Type{Kind: kind, Fields: fl}, nil

	case KindArray:
		rawElem, ok := fields["element_type"]
		if !ok {
			return nil, errAt(path, "missing required %q key", "element_type")
		}
		elem, err := parseNode(path+".element_type", rawElem)
		if err != nil {
			return nil, err
		}
		var size, length *SizeExpr
		if rawSize, ok := fields["size"]; ok {
			if size, err = parseSizeExpr(path, "size", rawSize); err != nil {
				return nil, err
			}
		}
		if rawLen, ok := fields["length"]; ok {
			if length, err = parseSizeExpr(path, "length", rawLen); err != nil {
				return nil, err
			}
		}
		if size == nil && length == nil {
			return nil, errAt(path, "Array requires at least one of %q or %q", "size", "length")
		}
		return &Type{Kind: kind, Element: elem, ArraySize: size, ArrayLength: length}, nil

	case KindEnum:
		by, err := requireString(path, fields, "by")
		if err != nil {
			return nil, err
		}
		rawMap, ok := fields["map"]
		if !ok {
			return nil, errAt(path, "missing required %q key", "map")
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal(rawMap, &m); err != nil {
			return nil, errAt(path, "%q must be an object: %v", "map", err)
		}
		cases := NewCaseList()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys) // deterministic emit order; map keying is by value, not position
		for _, k := range keys {
			child, err := parseNode(fmt.Sprintf("%s.map[%s]", path, k), m[k])
			if err != nil {
				return nil, err
			}
			cases.Set(k, child)
		}
		return &Type{Kind: kind, By: by, Cases: cases}, nil

	case KindChecksum:
		method, err := requireString(path, fields, "method")
		if err != nil {
			return nil, err
		}
		switch ChecksumMethod(method) {
		case Sum8, Sum16, Sum32, Xor8, Complement:
		default:
			return nil, errAt(path, "unknown checksum method %q", method)
		}
		startKey, err := requireString(path, fields, "start_key")
		if err != nil {
			return nil, err
		}
		endKey, err := requireString(path, fields, "end_key")
		if err != nil {
			return nil, err
		}
		targetKey, err := requireString(path, fields, "target_key")
		if err != nil {
			return nil, err
		}
		return &Type{
			Kind: kind, Method: ChecksumMethod(method),
			StartKey: startKey, EndKey: endKey, TargetKey: targetKey,
		}, nil

	case KindConverter:
		rawOrig, ok := fields["original_type"]
		if !ok {
			return nil, errAt(path, "missing required %q key", "original_type")
		}
		orig, err := parseNode(path+".original_type", rawOrig)
		if err != nil {
			return nil, err
		}
		var onRead, onWrite *ConverterSpec
		if raw, ok := fields["on_read"]; ok {
			if onRead, err = parseConverterSpec(path+".on_read", raw); err != nil {
				return nil, err
			}
		}
		if raw, ok := fields["on_write"]; ok {
			if onWrite, err = parseConverterSpec(path+".on_write", raw); err != nil {
				return nil, err
			}
		}
		return &Type{Kind: kind, Original: orig, OnRead: onRead, OnWrite: onWrite}, nil

	case KindEncrypt:
		rawInner, ok := fields["inner"]
		if !ok {
			return nil, errAt(path, "missing required %q key", "inner")
		}
		inner, err := parseNode(path+".inner", rawInner)
		if err != nil {
			return nil, err
		}
		keyName, err := requireString(path, fields, "key")
		if err != nil {
			return nil, err
		}
		size, err := requireSizeExpr(path, fields, "size")
		if err != nil {
			return nil, err
		}
		return &Type{Kind: kind, Inner: inner, KeyName: keyName, CipherSize: size}, nil

	case KindSign:
		rawInner, ok := fields["inner"]
		if !ok {
			return nil, errAt(path, "missing required %q key", "inner")
		}
		inner, err := parseNode(path+".inner", rawInner)
		if err != nil {
			return nil, err
		}
		hasher, err := requireString(path, fields, "hasher")
		if err != nil {
			return nil, err
		}
		sigKey, err := requireString(path, fields, "signature_key")
		if err != nil {
			return nil, err
		}
		sigPos, err := requireString(path, fields, "signature_position")
		if err != nil {
			return nil, err
		}
		return &Type{
			Kind: kind, Inner: inner, HasherName: hasher,
			SignatureKey: sigKey, SignaturePosition: sigPos,
		}, nil

	default:
		return nil, errAt(path, "unknown type tag %q", kindStr)
	}
}

func parseConverterSpec(path string, raw json.RawMessage) (*ConverterSpec, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errAt(path, "not a JSON object: %v", err)
	}
	allowed := keySet("before_valid", "convert", "after_valid")
	if err := rejectUnknownKeys(path, fields, allowed); err != nil {
		return nil, err
	}
	spec := &ConverterSpec{}
	if raw, ok := fields["before_valid"]; ok {
		if err := json.Unmarshal(raw, &spec.BeforeValid); err != nil {
			return nil, errAt(path, "%q must be a string", "before_valid")
		}
	}
	if raw, ok := fields["convert"]; ok {
		if err := json.Unmarshal(raw, &spec.Convert); err != nil {
			return nil, errAt(path, "%q must be a string", "convert")
		}
	}
	if raw, ok := fields["after_valid"]; ok {
		if err := json.Unmarshal(raw, &spec.AfterValid); err != nil {
			return nil, errAt(path, "%q must be a string", "after_valid")
		}
	}
	return spec, nil
}

func rejectUnknownKeys(path string, fields map[string]json.RawMessage, allowed map[string]bool) error {
	for k := range fields {
		if k == "type" {
			continue
		}
		if !allowed[k] {
			return errAt(path, "unknown key %q", k)
		}
	}
	return nil
}

func requireString(path string, fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", errAt(path, "missing required %q key", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errAt(path, "%q must be a string", key)
	}
	return s, nil
}

func requireSizeExpr(path string, fields map[string]json.RawMessage, key string) (*SizeExpr, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, errAt(path, "missing required %q key", key)
	}
	return parseSizeExpr(path, key, raw)
}

// parseSizeExpr implements spec.md §6's SizeExpr grammar: a JSON integer is
// a literal; a JSON string is tried as a pure identifier first, then as an
// expression.
func parseSizeExpr(path, key string, raw json.RawMessage) (*SizeExpr, error) {
	var asNum float64
	if err := json.Unmarshal(raw, &asNum); err == nil {
		if asNum < 0 || asNum != float64(uint64(asNum)) {
			return nil, errAt(path, "%q must be a non-negative integer", key)
		}
		return Lit(uint64(asNum)), nil
	}
	var asStr string
	if err := json.Unmarshal(raw, &asStr); err == nil {
		if expr.IsIdentifier(asStr) {
			return Ref(asStr), nil
		}
		return Expr(asStr), nil
	}
	return nil, errAt(path, "%q must be an integer or a string", key)
}

// Emit implements spec.md §6's emit_schema: Schema → text. The output need
// only be semantically equal to re-parsing the input (spec §8 property 4),
// not byte-identical to whatever text produced t.
func Emit(t *Type) ([]byte, error) {
	m, err := emitNode(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func emitNode(t *Type) (map[string]any, error) {
	m := map[string]any{"type": string(t.Kind)}

	if t.Kind.IsFixedWidth() {
		if t.Endian != "" && t.Endian != BigEndian {
			m["endian"] = string(t.Endian)
		}
		return m, nil
	}

	switch t.Kind {
	case KindBin:
		m["size"] = emitSizeExpr(t.Size)
	case KindString:
		m["size"] = emitSizeExpr(t.Size)
		m["encoding"] = t.Encoding
	case KindMagic:
		m["magic"] = t.MagicBytes
	case KindStruct:
		var items []map[string]any
		for pair := t.Fields.Oldest(); pair != nil; pair = pair.Next() {
			child, err := emitNode(pair.Value.Type)
			if err != nil {
				return nil, err
			}
			items = append(items, map[string]any{
				"name": pair.Key, "type": child, "optional": pair.Value.Optional,
			})
		}
		m["fields"] = items
	case KindArray:
		child, err := emitNode(t.Element)
		if err != nil {
			return nil, err
		}
		m["element_type"] = child
		if t.ArraySize != nil {
			m["size"] = emitSizeExpr(t.ArraySize)
		}
		if t.ArrayLength != nil {
			m["length"] = emitSizeExpr(t.ArrayLength)
		}
	case KindEnum:
		m["by"] = t.By
		cases := map[string]any{}
		for pair := t.Cases.Oldest(); pair != nil; pair = pair.Next() {
			child, err := emitNode(pair.Value)
			if err != nil {
				return nil, err
			}
			cases[pair.Key] = child
		}
		m["map"] = cases
	case KindChecksum:
		m["method"] = string(t.Method)
		m["start_key"] = t.StartKey
		m["end_key"] = t.EndKey
		m["target_key"] = t.TargetKey
	case KindConverter:
		child, err := emitNode(t.Original)
		if err != nil {
			return nil, err
		}
		m["original_type"] = child
		if t.OnRead != nil {
			m["on_read"] = emitConverterSpec(t.OnRead)
		}
		if t.OnWrite != nil {
			m["on_write"] = emitConverterSpec(t.OnWrite)
		}
	case KindEncrypt:
		child, err := emitNode(t.Inner)
		if err != nil {
			return nil, err
		}
		m["inner"] = child
		m["key"] = t.KeyName
		m["size"] = emitSizeExpr(t.CipherSize)
	case KindSign:
		child, err := emitNode(t.Inner)
		if err != nil {
			return nil, err
		}
		m["inner"] = child
		m["hasher"] = t.HasherName
		m["signature_key"] = t.SignatureKey
		m["signature_position"] = t.SignaturePosition
	default:
		return nil, fmt.Errorf("schema: cannot emit unknown kind %q", t.Kind)
	}
	return m, nil
}

func emitConverterSpec(c *ConverterSpec) map[string]any {
	m := map[string]any{}
	if c.BeforeValid != "" {
		m["before_valid"] = c.BeforeValid
	}
	if c.Convert != "" {
		m["convert"] = c.Convert
	}
	if c.AfterValid != "" {
		m["after_valid"] = c.AfterValid
	}
	return m
}

func emitSizeExpr(s *SizeExpr) any {
	switch s.Kind {
	case SizeLiteral:
		return s.Literal
	case SizeIdent:
		return s.Ident
	default:
		return s.Expr
	}
}
