package models

// Get walks path through the record and returns the value found at its end.
// The boolean is false (the absence marker) as soon as a step lands on a
// value that is not an object or that lacks the named property. A property
// that is present with a JSON null value is returned as a null Value with
// ok=true. The returned value is a deep copy, so callers can never mutate
// the record through it and nothing aliases the record's nested arrays or
// objects.
func Get(record Record, path ...string) (Value, bool) {
	var cur interface{} = map[string]interface{}(record)
	for _, key := range path {
		obj, ok := asObject(cur)
		if !ok {
			return Value{}, false
		}
		next, present := obj[key]
		if !present {
			return Value{}, false
		}
		cur = next
	}
	return NewValue(DeepCopy(cur)), true
}

// Get is the method form of the package-level Get
func (r Record) Get(path ...string) (Value, bool) {
	return Get(r, path...)
}

// Lookup is Get that collapses absence into a null Value, for callers that
// treat a missing property and a null one the same way
func (r Record) Lookup(path ...string) Value {
	v, _ := Get(r, path...)
	return v
}

// DeepCopy returns a copy of a decoded JSON value that shares no maps or
// slices with the original
func DeepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = DeepCopy(e)
		}
		return out
	case Record:
		return DeepCopy(map[string]interface{}(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = DeepCopy(e)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = DeepCopy(e)
		}
		return out
	default:
		return t
	}
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case Record:
		return t, true
	default:
		return nil, false
	}
}
