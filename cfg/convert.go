package cfg

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/dbm/ref"
	"github.com/pkg/errors"
)

var (
	durationType    = reflect.TypeOf(time.Duration(0))
	timeType        = reflect.TypeOf(time.Time{})
	typeOptionsType = reflect.TypeOf(ref.TypeOptions{})
)

func convert(src any, object any) error {
	dst := reflect.ValueOf(object)
	if dst.Kind() != reflect.Ptr || dst.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return convertValue(src, dst.Elem())
}

func convertValue(src any, dst reflect.Value) error {
	sv := reflect.ValueOf(src)
	if !sv.IsValid() {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convertValue(src, dst.Elem())
	}

	// ref.TypeOptions 的 Options 保留为 Node，由构造函数决定最终类型
	if dst.Type() == typeOptionsType {
		return convertTypeOptions(sv, dst)
	}

	switch dst.Type() {
	case durationType:
		return convertDuration(sv, dst)
	case timeType:
		return convertTime(sv, dst)
	}

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}

	switch dst.Kind() {
	case reflect.Struct:
		return convertStruct(sv, dst)
	case reflect.Map:
		return convertMap(sv, dst)
	case reflect.Slice:
		return convertSlice(sv, dst)
	case reflect.String:
		// 数字转字符串不能走 reflect 的 Convert，否则会得到 rune
		dst.SetString(fmt.Sprint(src))
		return nil
	case reflect.Bool:
		if sv.Kind() == reflect.String {
			b, err := strconv.ParseBool(sv.String())
			if err != nil {
				return errors.Wrapf(err, "invalid bool %q", sv.String())
			}
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if sv.Kind() == reflect.String {
			f, err := strconv.ParseFloat(sv.String(), 64)
			if err != nil {
				return errors.Wrapf(err, "invalid number %q", sv.String())
			}
			sv = reflect.ValueOf(f)
		}
	}

	if sv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
}

func convertTypeOptions(sv reflect.Value, dst reflect.Value) error {
	m, ok := sv.Interface().(map[string]any)
	if !ok {
		return errors.Errorf("type options must be a map, got %v", sv.Type())
	}
	opts := ref.TypeOptions{}
	opts.Namespace, _ = m["namespace"].(string)
	opts.Type, _ = m["type"].(string)
	if options, ok := m["options"]; ok && options != nil {
		opts.Options = NewNode(options)
	}
	dst.Set(reflect.ValueOf(opts))
	return nil
}

func convertDuration(sv reflect.Value, dst reflect.Value) error {
	switch sv.Kind() {
	case reflect.String:
		d, err := time.ParseDuration(sv.String())
		if err != nil {
			return errors.Wrapf(err, "invalid duration %q", sv.String())
		}
		dst.SetInt(int64(d))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(sv.Int())
		return nil
	case reflect.Float32, reflect.Float64:
		dst.SetInt(int64(sv.Float()))
		return nil
	}
	return errors.Errorf("cannot convert %v to time.Duration", sv.Type())
}

func convertTime(sv reflect.Value, dst reflect.Value) error {
	if t, ok := sv.Interface().(time.Time); ok {
		dst.Set(reflect.ValueOf(t))
		return nil
	}
	if sv.Kind() == reflect.String {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, sv.String()); err == nil {
				dst.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return errors.Errorf("invalid time %q", sv.String())
	}
	if sv.CanInt() {
		dst.Set(reflect.ValueOf(time.Unix(sv.Int(), 0)))
		return nil
	}
	return errors.Errorf("cannot convert %v to time.Time", sv.Type())
}

// fieldName cfg tag 优先，其次 json、yaml tag，最后是字段名
func fieldName(field reflect.StructField) string {
	for _, tagName := range []string{"cfg", "json", "yaml"} {
		if tag := field.Tag.Get(tagName); tag != "" {
			if name := strings.Split(tag, ",")[0]; name != "" && name != "-" {
				return name
			}
		}
	}
	return field.Name
}

func convertStruct(sv reflect.Value, dst reflect.Value) error {
	if sv.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to struct %v", sv.Type(), dst.Type())
	}

	src := map[string]reflect.Value{}
	for _, k := range sv.MapKeys() {
		src[strings.ToLower(fmt.Sprint(k.Interface()))] = sv.MapIndex(k)
	}

	for i := 0; i < dst.NumField(); i++ {
		field := dst.Type().Field(i)
		if !field.IsExported() {
			continue
		}
		// 键名大小写不敏感
		v, ok := src[strings.ToLower(fieldName(field))]
		if !ok {
			continue
		}
		if err := convertValue(v.Interface(), dst.Field(i)); err != nil {
			return errors.WithMessagef(err, "field %s", field.Name)
		}
	}
	return nil
}

func convertMap(sv reflect.Value, dst reflect.Value) error {
	if sv.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to map", sv.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}
	for _, k := range sv.MapKeys() {
		key := reflect.New(dst.Type().Key()).Elem()
		if err := convertValue(k.Interface(), key); err != nil {
			return err
		}
		val := reflect.New(dst.Type().Elem()).Elem()
		if err := convertValue(sv.MapIndex(k).Interface(), val); err != nil {
			return errors.WithMessagef(err, "key %v", k.Interface())
		}
		dst.SetMapIndex(key, val)
	}
	return nil
}

func convertSlice(sv reflect.Value, dst reflect.Value) error {
	if sv.Kind() != reflect.Slice && sv.Kind() != reflect.Array {
		return errors.Errorf("cannot convert %v to slice", sv.Type())
	}
	out := reflect.MakeSlice(dst.Type(), sv.Len(), sv.Len())
	for i := 0; i < sv.Len(); i++ {
		if err := convertValue(sv.Index(i).Interface(), out.Index(i)); err != nil {
			return errors.WithMessagef(err, "index %d", i)
		}
	}
	dst.Set(out)
	return nil
}
