package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind tags the runtime type held by a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a JSON-like tagged union used for event payloads and condition operands.
// Numbers keep their decimal text so 18-decimal token amounts never pass through float64.
type Value struct {
	kind Kind
	b    bool
	text string
	list []Value
	m    map[string]Value
}

// Undefined is the value of a missing payload field.
var Undefined = Value{}

func Null() Value {
	return Value{kind: KindNull}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func String(s string) Value {
	return Value{kind: KindString, text: s}
}

func List(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

func Map(m map[string]Value) Value {
	return Value{kind: KindMap, m: m}
}

func Int(i int64) Value {
	return Value{kind: KindNumber, text: strconv.FormatInt(i, 10)}
}

// Number builds a number from its decimal text. The text is not validated here;
// comparisons on an unparsable number fail as not comparable.
func Number(text string) Value {
	return Value{kind: KindNumber, text: text}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsUndefined() bool {
	return v.kind == KindUndefined
}

func (v Value) AsBool() bool {
	return v.b
}

func (v Value) Text() string {
	return v.text
}

func (v Value) Items() []Value {
	return v.list
}

func (v Value) Fields() map[string]Value {
	return v.m
}

// Lookup returns the named field of a map value, or Undefined.
func (v Value) Lookup(key string) Value {
	if v.kind != KindMap {
		return Undefined
	}
	field, ok := v.m[key]
	if !ok {
		return Undefined
	}
	return field
}

// String renders the value for templates and logs.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber, KindString:
		return v.text
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return v.kind.String()
		}
		return string(data)
	}
}

// Interface converts the value into plain Go types for JSON-like consumers.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return json.Number(v.text)
	case KindString:
		return v.text
	case KindList:
		out := make([]interface{}, 0, len(v.list))
		for _, item := range v.list {
			out = append(out, item.Interface())
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes the value; Undefined encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindUndefined, KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		if !json.Valid([]byte(v.text)) {
			return nil, fmt.Errorf("invalid number %q", v.text)
		}
		return []byte(v.text), nil
	case KindString:
		return json.Marshal(v.text)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindMap:
		var buf bytes.Buffer
		buf.WriteByte('{')
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(k)
			buf.Write(key)
			buf.WriteByte(':')
			item, err := v.m[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(item)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON decodes any JSON document, keeping numbers as text.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromInterface converts decoded JSON (decoded with UseNumber) or plain Go values into a Value.
func FromInterface(raw interface{}) (Value, error) {
	switch typed := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return typed, nil
	case bool:
		return Bool(typed), nil
	case json.Number:
		return Number(typed.String()), nil
	case string:
		return String(typed), nil
	case int:
		return Int(int64(typed)), nil
	case int64:
		return Int(typed), nil
	case uint64:
		return Number(strconv.FormatUint(typed, 10)), nil
	case float64:
		return Number(strconv.FormatFloat(typed, 'f', -1, 64)), nil
	case []interface{}:
		items := make([]Value, 0, len(typed))
		for _, item := range typed {
			parsed, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, parsed)
		}
		return List(items...), nil
	case []string:
		items := make([]Value, 0, len(typed))
		for _, item := range typed {
			items = append(items, String(item))
		}
		return List(items...), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(typed))
		for k, item := range typed {
			parsed, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = parsed
		}
		return Map(fields), nil
	case map[string]string:
		fields := make(map[string]Value, len(typed))
		for k, item := range typed {
			fields[k] = String(item)
		}
		return Map(fields), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// Payload is the field map carried by an event.
type Payload map[string]Value

// Get returns the named field or Undefined when absent.
func (p Payload) Get(field string) Value {
	if p == nil {
		return Undefined
	}
	v, ok := p[field]
	if !ok {
		return Undefined
	}
	return v
}
