package twitter

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode"
	"unsafe"
)

const maxFlattenDepth = 32

var timeType = reflect.TypeOf(time.Time{})

// Flatten turns v into maps, slices and scalars that encoding/json can render.
// Struct fields are all included, unexported ones too, named by their json
// tag or in snake_case. Times become RFC 3339 text.
func Flatten(v any) any {
	if v == nil {
		return nil
	}
	return flatten(reflect.ValueOf(v), 0)
}

func flatten(v reflect.Value, depth int) any {
	if !v.IsValid() || depth > maxFlattenDepth {
		return nil
	}

	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return nil
		}
		return t.Format(time.RFC3339)
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return flatten(v.Elem(), depth+1)

	case reflect.Struct:
		// Copy into an addressable value so unexported fields can be read.
		addressable := reflect.New(v.Type()).Elem()
		addressable.Set(v)

		out := make(map[string]any, v.NumField())
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			name, skip := fieldName(sf)
			if skip {
				continue
			}
			fv := addressable.Field(i)
			if !fv.CanInterface() {
				fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
			}
			out[name] = flatten(fv, depth+1)
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return []any{}
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return string(v.Bytes())
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = flatten(v.Index(i), depth+1)
		}
		return out

	case reflect.Map:
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = flatten(iter.Value(), depth+1)
		}
		return out

	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.String:
		return v.String()
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil
	}

	if v.CanInterface() {
		return v.Interface()
	}
	return fmt.Sprint(v)
}

func fieldName(sf reflect.StructField) (name string, skip bool) {
	if tag, ok := sf.Tag.Lookup("json"); ok {
		name, _, _ = strings.Cut(tag, ",")
		if name == "-" {
			return "", true
		}
		if name != "" {
			return name, false
		}
	}
	return snakeCase(sf.Name), false
}

// snakeCase converts CamelCase and camelCase names, keeping acronyms together:
// ProfileImageURL → profile_image_url, pinnedTweetIDs → pinned_tweet_ids.
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				pluralAcronym := nextLower && runes[i+1] == 's' && (i+2 == len(runes) || unicode.IsUpper(runes[i+2]))
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower && !pluralAcronym) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
