// Package normalize flattens heterogeneous API response values into tabular
// rows and provides alias-tolerant field extraction for legacy payload shapes.
package normalize

import (
	"fmt"
	"reflect"
	"strings"
)

// Row is one flat record: column name to scalar or serialized value.
type Row = map[string]any

// Normalizable is implemented by wrapper types around vendor response models
// that know how to render themselves as a flat row.
type Normalizable interface {
	ToRow() Row
}

// Normalize converts an arbitrary response value into a Row.
//
// Plain maps pass through shallowly. Normalizable values delegate to ToRow.
// Structs are flattened over their exported fields, preferring json tag names
// and excluding empty values. Anything else is wrapped as {"value": ...}.
func Normalize(v any) Row {
	switch t := v.(type) {
	case nil:
		return Row{}
	case Row:
		return t
	case map[string]string:
		out := make(Row, len(t))
		for k, val := range t {
			out[k] = val
		}
		return out
	case Normalizable:
		if row := t.ToRow(); row != nil {
			return row
		}
		return Row{}
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Row{}
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		return structRow(rv)
	}
	return Row{"value": fmt.Sprint(v)}
}

// MaterializeRows converts a call result into zero or more rows. A single
// struct, map, or Normalizable is exactly one row; only genuine slices and
// arrays fan out into multiple rows. A singleton is never iterated into
// pseudo-rows built from its own fields.
func MaterializeRows(v any) []Row {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case Row:
		return []Row{t}
	case []Row:
		out := make([]Row, 0, len(t))
		for _, r := range t {
			out = append(out, r)
		}
		return out
	case Normalizable:
		return []Row{Normalize(t)}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]Row, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, Normalize(rv.Index(i).Interface()))
		}
		return out
	}
	return []Row{Normalize(v)}
}

func structRow(rv reflect.Value) Row {
	rt := rv.Type()
	out := make(Row, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		value := rv.Field(i).Interface()
		if IsEmpty(value) {
			continue
		}
		out[name] = value
	}
	return out
}

// emptyTokens are string literals treated as absent values when they arrive
// from upstream exports that serialize missing data as text.
var emptyTokens = map[string]struct{}{
	"none": {},
	"null": {},
	"nan":  {},
	"n/a":  {},
}

// IsEmpty reports whether a value carries no usable data. Nil, blank or
// whitespace-only strings, the textual tokens none/null/nan/n/a, empty
// collections, and collections whose every element is itself empty all count
// as empty.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return true
		}
		_, tokenized := emptyTokens[strings.ToLower(trimmed)]
		return tokenized
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return IsEmpty(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if !IsEmpty(rv.Index(i).Interface()) {
				return false
			}
		}
		return true
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if !IsEmpty(iter.Value().Interface()) {
				return false
			}
		}
		return true
	}
	return false
}
