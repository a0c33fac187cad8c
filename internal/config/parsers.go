package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// lookupSetting finds a value in settings under any of the candidate keys,
// also trying the lowercase form of each candidate.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		if val, ok := settings[strings.ToLower(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

// The as* helpers lean on cast for the actual coercion, with two niceties
// for hand-written suite files: string values are trimmed first, and a
// blank string reads as the zero value so an empty key falls back to its
// default instead of erroring.

func asString(value interface{}) (string, error) {
	return cast.ToStringE(value)
}

func asInt(value interface{}) (int, error) {
	value = normalize(value)
	if value == "" {
		return 0, nil
	}
	return cast.ToIntE(value)
}

func asFloat64(value interface{}) (float64, error) {
	value = normalize(value)
	if value == "" {
		return 0, nil
	}
	return cast.ToFloat64E(value)
}

func asBool(value interface{}) (bool, error) {
	value = normalize(value)
	if value == "" {
		return false, nil
	}
	return cast.ToBoolE(value)
}

func normalize(value interface{}) interface{} {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return value
}

// asDuration accepts time.Duration, Go duration strings, and bare numbers,
// which are read as seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return time.ParseDuration(s)
	default:
		secs, err := cast.ToFloat64E(value)
		if err != nil {
			return 0, fmt.Errorf("unsupported duration type %T", value)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}

func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	m, err := cast.ToStringMapStringE(value)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for key, val := range m {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("map key cannot be empty")
		}
		out[key] = val
	}
	return out, nil
}

// asAnyMap keeps values untyped so numbers and nested structures survive
// into request payloads unchanged.
func asAnyMap(value interface{}) (map[string]any, error) {
	if value == nil {
		return nil, nil
	}
	m, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(m))
	for key, val := range m {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("map key cannot be empty")
		}
		out[key] = val
	}
	return out, nil
}

// asStringSlice keeps a bare string as a single element rather than
// splitting it on whitespace; threshold expressions contain spaces.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	default:
		return cast.ToStringSliceE(value)
	}
}

func toInterfaceSlice(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	case []map[string]interface{}:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", value)
	}
}

// toStringKeyMap lowercases keys so section fields match regardless of the
// casing used in the file.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	result := map[string]interface{}{}
	switch v := value.(type) {
	case map[string]interface{}:
		for key, val := range v {
			result[strings.ToLower(strings.TrimSpace(key))] = val
		}
	case map[interface{}]interface{}:
		for rawKey, val := range v {
			key, err := asString(rawKey)
			if err != nil {
				return nil, err
			}
			result[strings.ToLower(strings.TrimSpace(key))] = val
		}
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	return result, nil
}
