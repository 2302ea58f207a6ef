package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// #region value-kinds
// Stored values are tagged with a kind so they read back with their Go type.
const (
	kindNull   = "null"
	kindBool   = "bool"
	kindInt    = "int"
	kindFloat  = "float"
	kindString = "string"
	kindJSON   = "json"
)

type encoded struct {
	kind string
	text sql.NullString
	num  sql.NullFloat64
}

// encodeValue maps a logged value to its kind, text form and (if finite) numeric form.
func encodeValue(v any) (encoded, error) {
	if v == nil {
		return encoded{kind: kindNull}, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		b := rv.Bool()
		n := 0.0
		if b {
			n = 1
		}
		return encoded{kind: kindBool, text: validText(strconv.FormatBool(b)), num: validNum(n)}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		return encoded{kind: kindInt, text: validText(strconv.FormatInt(i, 10)), num: validNum(float64(i))}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		return encoded{kind: kindInt, text: validText(strconv.FormatUint(u, 10)), num: validNum(float64(u))}, nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		e := encoded{kind: kindFloat, text: validText(strconv.FormatFloat(f, 'g', -1, 64))}
		if !math.IsInf(f, 0) && !math.IsNaN(f) {
			e.num = validNum(f)
		}
		return e, nil
	case reflect.String:
		return encoded{kind: kindString, text: validText(rv.String())}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return encoded{}, fmt.Errorf("encode %T: %w", v, err)
	}
	return encoded{kind: kindJSON, text: validText(string(b))}, nil
}

// decodeValue is the inverse of encodeValue. Ints read back as int64.
func decodeValue(kind string, text sql.NullString) (any, error) {
	switch kind {
	case kindNull:
		return nil, nil
	case kindBool:
		return strconv.ParseBool(text.String)
	case kindInt:
		return strconv.ParseInt(text.String, 10, 64)
	case kindFloat:
		return strconv.ParseFloat(text.String, 64)
	case kindString:
		return text.String, nil
	case kindJSON:
		var v any
		if err := json.Unmarshal([]byte(text.String), &v); err != nil {
			return nil, fmt.Errorf("decode json value: %w", err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown value kind %q", kind)
}

func validText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func validNum(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}

// #endregion value-kinds

// #region helpers
func splitKey(key string) []string {
	return strings.Split(key, "/")
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
