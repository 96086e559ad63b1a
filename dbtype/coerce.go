package dbtype

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// 依次尝试的日期时间格式，覆盖 ISO-8601 以及 sqlite/postgres 驱动返回的字符串
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// unwrap 解引用指针并展开 driver.Valuer，例如 sql.NullString
func unwrap(raw any) any {
	for i := 0; i < 8; i++ {
		if v, ok := raw.(driver.Valuer); ok {
			val, err := v.Value()
			if err != nil {
				return raw
			}
			raw = val
			continue
		}
		rv := reflect.ValueOf(raw)
		if rv.Kind() != reflect.Ptr {
			return raw
		}
		if rv.IsNil() {
			return nil
		}
		raw = rv.Elem().Interface()
	}
	return raw
}

// IsNull 判断是否为空值，包括 nil 指针和无效的 sql.NullXxx
func IsNull(raw any) bool {
	return isNil(raw)
}

func isNil(raw any) bool {
	return unwrap(raw) == nil
}

func toInteger(raw any) (any, bool) {
	raw = unwrap(raw)
	switch v := raw.(type) {
	case bool:
		if v {
			return int64(1), true
		}
		return int64(0), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, false
		}
		return i, true
	case []byte:
		return toInteger(string(v))
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		// 只接受整数值的浮点数
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return nil, false
		}
		return int64(f), true
	case reflect.String:
		return toInteger(rv.String())
	}
	return nil, false
}

func toFloat(raw any) (any, bool) {
	raw = unwrap(raw)
	switch v := raw.(type) {
	case bool:
		if v {
			return float64(1), true
		}
		return float64(0), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case []byte:
		return toFloat(string(v))
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.String:
		return toFloat(rv.String())
	}
	return nil, false
}

func toString(raw any) (string, bool) {
	raw = unwrap(raw)
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case time.Time:
		return v.Format(time.RFC3339Nano), true
	case bool:
		return strconv.FormatBool(v), true
	case fmt.Stringer:
		return v.String(), true
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	}
	return "", false
}

// truncate n <= 0 表示长度未知，不截断
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func toBoolean(raw any) (any, bool) {
	raw = unwrap(raw)
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, false
		}
		return b, true
	case []byte:
		return toBoolean(string(v))
	}

	// mysql 的 TINYINT(1) 和 sqlite 的 INTEGER 会以整数返回
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0, true
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0, true
	case reflect.String:
		return toBoolean(rv.String())
	}
	return nil, false
}

func toTime(raw any) (time.Time, bool) {
	raw = unwrap(raw)
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case []byte:
		return toTime(string(v))
	}

	rv := reflect.ValueOf(raw)
	if rv.Type().ConvertibleTo(timeType) && rv.Kind() == reflect.Struct {
		return rv.Convert(timeType).Interface().(time.Time), true
	}
	// 数值按 unix 时间戳（秒）处理，只接受 0000 到 9999 年
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fromEpoch(rv.Int(), 0)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return time.Time{}, false
		}
		return fromEpoch(int64(u), 0)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
			return time.Time{}, false
		}
		sec, frac := math.Modf(f)
		return fromEpoch(int64(sec), int64(math.Round(frac*1e9)))
	case reflect.String:
		return toTime(rv.String())
	}
	return time.Time{}, false
}

var (
	minEpoch = time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	maxEpoch = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC).Unix()
)

func fromEpoch(sec, nsec int64) (time.Time, bool) {
	if sec < minEpoch || sec > maxEpoch {
		return time.Time{}, false
	}
	return time.Unix(sec, nsec).UTC(), true
}

func toDate(raw any) (any, bool) {
	t, ok := toTime(raw)
	if !ok {
		return nil, false
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
}

func toDateTime(raw any) (any, bool) {
	t, ok := toTime(raw)
	if !ok {
		return nil, false
	}
	return t, true
}
