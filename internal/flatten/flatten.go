// File: internal/flatten/flatten.go
//
// Package flatten converts arbitrarily shaped JSON values into flat rows
// suitable for tabular export. It is a pure data transform: no I/O, no
// state, and it never fails. Unknown shapes degrade to a single scalar
// column.
package flatten

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Row maps a dotted/underscored field path to a scalar cell value. Rows
// produced from one value share no required schema; the sink reconciles
// columns.
type Row = map[string]any

// RawResponseColumn is the reserved column used when a value flattens to
// zero rows and the caller still needs something tabular to write.
const RawResponseColumn = "raw_response"

// Flatten turns a decoded JSON value into an ordered sequence of flat rows.
//
// Rules, applied recursively:
//   - scalar: one row {"value": scalar}
//   - non-empty list: each element flattened independently, concatenated
//   - object with non-empty list fields: parallel-arrays expansion, one row
//     per index of the longest list field
//   - object without list fields: a single row, nested objects joined with
//     "parent_" prefixes, nested lists serialized to JSON strings
//   - empty objects and lists: omitted
func Flatten(v any) []Row {
	return flattenValue(v, "")
}

// FlattenOrRaw behaves like Flatten but guarantees at least one row: if the
// value flattens to nothing, the raw serialized value lands in a single row
// under RawResponseColumn.
func FlattenOrRaw(v any) []Row {
	rows := Flatten(v)
	if len(rows) == 0 {
		rows = []Row{{RawResponseColumn: serialize(v)}}
	}
	return rows
}

func flattenValue(v any, prefix string) []Row {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			return nil
		}
		lists := listFields(val)
		if len(lists) > 0 {
			return expandParallel(val, lists, prefix)
		}
		row := flattenObject(val, prefix)
		if len(row) == 0 {
			return nil
		}
		return []Row{row}

	case []any:
		var rows []Row
		for _, item := range val {
			rows = append(rows, flattenValue(item, prefix)...)
		}
		return rows

	default:
		return []Row{{prefix + "value": v}}
	}
}

// listFields collects the non-empty list-valued fields of an object. These
// are the fields that trigger row expansion.
func listFields(obj map[string]any) map[string][]any {
	var lists map[string][]any
	for k, v := range obj {
		if l, ok := v.([]any); ok && len(l) > 0 {
			if lists == nil {
				lists = make(map[string][]any)
			}
			lists[k] = l
		}
	}
	return lists
}

// expandParallel treats an object with list-valued fields as a parallel
// arrays record: the longest list determines the row count, shorter lists
// pad with empty strings, and non-list fields repeat on every row.
func expandParallel(obj map[string]any, lists map[string][]any, prefix string) []Row {
	maxLen := 0
	for _, l := range lists {
		if len(l) > maxLen {
			maxLen = len(l)
		}
	}

	rows := make([]Row, 0, maxLen)
	for i := 0; i < maxLen; i++ {
		row := Row{}
		for k, v := range obj {
			if l, ok := lists[k]; ok {
				if i >= len(l) {
					row[prefix+k] = ""
					continue
				}
				if nested, ok := l[i].(map[string]any); ok {
					mergeInto(row, flattenObject(nested, prefix+k+"_"))
				} else {
					row[prefix+k] = l[i]
				}
				continue
			}
			// Empty lists carry no information; skip them.
			if _, isList := v.([]any); isList {
				continue
			}
			if nested, ok := v.(map[string]any); ok {
				mergeInto(row, flattenObject(nested, prefix+k+"_"))
			} else {
				row[prefix+k] = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// flattenObject flattens a single object into one row. Nested objects
// recurse with a "parent_" prefix; list values at this depth are serialized
// rather than expanded, since row expansion only happens at the top level of
// a record.
func flattenObject(obj map[string]any, prefix string) Row {
	row := Row{}
	for k, v := range obj {
		key := prefix + k
		switch t := v.(type) {
		case map[string]any:
			mergeInto(row, flattenObject(t, key+"_"))
		case []any:
			if len(t) == 0 {
				row[key] = ""
			} else {
				row[key] = serialize(t)
			}
		default:
			row[key] = v
		}
	}
	return row
}

func mergeInto(dst, src Row) {
	for k, v := range src {
		dst[k] = v
	}
}

func serialize(v any) string {
	s, err := json.MarshalToString(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return s
}
