package model

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/dbm"
	"github.com/hatlonely/dbm/dbtype"
	"github.com/pkg/errors"
)

// Tabler 结构体可以实现该接口来指定表名
type Tabler interface {
	TableName() string
}

var timeType = reflect.TypeOf(time.Time{})

// SchemaFromStruct 从结构体构建表结构
// 支持的 tag 格式：
//   - `dbm:"column_name,type=charn,size=10,primary,required,unique"`
//   - `table:"table_name"` 用于指定表名（任意字段上）
//
// type 取值：integer, float, string, charn, boolean, date, datetime，缺省时按 Go 类型推断
func SchemaFromStruct(v any) (*Schema, error) {
	rt := reflect.TypeOf(v)
	for rt != nil && rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, errors.Wrapf(dbm.ErrConfiguration, "expected struct, got %T", v)
	}

	table := tableName(v, rt)

	var fields []Field
	var primaryKeys []string
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("dbm")
		if tag == "-" {
			continue
		}

		field, primary, err := parseFieldTag(sf, tag)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to parse field %s", sf.Name)
		}
		fields = append(fields, field)
		if primary {
			primaryKeys = append(primaryKeys, field.Name)
		}
	}

	return NewSchema(table, primaryKeys, fields...)
}

func tableName(v any, rt reflect.Type) string {
	if t, ok := v.(Tabler); ok {
		return t.TableName()
	}
	for i := 0; i < rt.NumField(); i++ {
		if name := rt.Field(i).Tag.Get("table"); name != "" {
			return name
		}
	}
	return toSnakeCase(rt.Name())
}

func parseFieldTag(sf reflect.StructField, tag string) (Field, bool, error) {
	name := toSnakeCase(sf.Name)
	kind := inferKind(sf.Type)
	var size int
	var primary bool
	var opts []dbtype.Option

	parts := strings.Split(tag, ",")
	if len(parts) > 0 && parts[0] != "" && !strings.Contains(parts[0], "=") {
		name = strings.TrimSpace(parts[0])
		parts = parts[1:]
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if kv := strings.SplitN(part, "=", 2); len(kv) == 2 {
			key, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
			switch key {
			case "type":
				k, ok := parseKind(value)
				if !ok {
					return Field{}, false, errors.Wrapf(dbm.ErrConfiguration, "unknown type [%s]", value)
				}
				kind = k
			case "size":
				n, err := strconv.Atoi(value)
				if err != nil {
					return Field{}, false, errors.Wrapf(dbm.ErrConfiguration, "invalid size [%s]", value)
				}
				size = n
			}
			continue
		}
		switch part {
		case "primary":
			primary = true
		case "required":
			opts = append(opts, dbtype.NotNull())
		case "unique":
			opts = append(opts, dbtype.Unique())
		}
	}

	// 字符串指定了长度时使用定长类型
	if kind == dbtype.KindString && size > 0 {
		kind = dbtype.KindCharN
	}
	if kind == 0 {
		return Field{}, false, errors.Wrapf(dbm.ErrConfiguration, "cannot infer column type from %s", sf.Type)
	}

	return Field{Name: name, Type: dbtype.ConstructorOf(kind)(size, opts...)}, primary, nil
}

func parseKind(s string) (dbtype.Kind, bool) {
	switch strings.ToLower(s) {
	case "integer", "int":
		return dbtype.KindInteger, true
	case "float":
		return dbtype.KindFloat, true
	case "string", "text":
		return dbtype.KindString, true
	case "charn", "varchar":
		return dbtype.KindCharN, true
	case "boolean", "bool":
		return dbtype.KindBoolean, true
	case "date":
		return dbtype.KindDate, true
	case "datetime", "timestamp":
		return dbtype.KindDateTime, true
	}
	return 0, false
}

func inferKind(t reflect.Type) dbtype.Kind {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return dbtype.KindDateTime
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return dbtype.KindInteger
	case reflect.Float32, reflect.Float64:
		return dbtype.KindFloat
	case reflect.String:
		return dbtype.KindString
	case reflect.Bool:
		return dbtype.KindBoolean
	}
	return 0
}

func toSnakeCase(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && (runes[i-1] < 'A' || runes[i-1] > 'Z' || (i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z')) {
				sb.WriteByte('_')
			}
			sb.WriteRune(r + 'a' - 'A')
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// columnIndex 列名到结构体字段下标
func columnIndex(rt reflect.Type) map[string]int {
	index := map[string]int{}
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("dbm")
		if tag == "-" {
			continue
		}
		name := toSnakeCase(sf.Name)
		if head := strings.Split(tag, ",")[0]; head != "" && !strings.Contains(head, "=") {
			name = strings.TrimSpace(head)
		}
		index[name] = i
	}
	return index
}

// FromStruct 按 dbm tag 把结构体的值写入一条新记录
func FromStruct(schema *Schema, v any) (*Model, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, errors.Wrap(dbm.ErrInvalidArgument, "nil struct pointer")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errors.Wrapf(dbm.ErrInvalidArgument, "expected struct, got %T", v)
	}

	m := schema.New()
	for name, i := range columnIndex(rv.Type()) {
		if !schema.HasField(name) {
			continue
		}
		if err := m.Set(name, rv.Field(i).Interface()); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Scan 把记录的值写入结构体指针
func (m *Model) Scan(dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return errors.Wrap(dbm.ErrInvalidArgument, "dest must be a pointer to struct")
	}
	rv = rv.Elem()

	for name, i := range columnIndex(rv.Type()) {
		value, ok := m.values[name]
		if !ok {
			continue
		}
		if err := setFieldValue(rv.Field(i), value); err != nil {
			return errors.WithMessagef(err, "failed to set field %s", name)
		}
	}
	return nil
}

func setFieldValue(fv reflect.Value, value any) error {
	if !fv.CanSet() {
		return nil
	}
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}

	// 指针字段分配内存后再赋值
	if fv.Kind() == reflect.Ptr {
		ptr := reflect.New(fv.Type().Elem())
		if err := setFieldValue(ptr.Elem(), value); err != nil {
			return err
		}
		fv.Set(ptr)
		return nil
	}

	vv := reflect.ValueOf(value)
	switch {
	case vv.Type().AssignableTo(fv.Type()):
		fv.Set(vv)
	case fv.Kind() == reflect.Bool && vv.Kind() == reflect.Int64:
		fv.SetBool(vv.Int() != 0)
	case vv.Type() != timeType && vv.Type().ConvertibleTo(fv.Type()) && fv.Kind() != reflect.String:
		fv.Set(vv.Convert(fv.Type()))
	case fv.Kind() == reflect.String:
		fv.SetString(fmt.Sprint(value))
	default:
		return errors.Wrapf(dbm.ErrTypeMismatch, "cannot convert %v to %v", vv.Type(), fv.Type())
	}
	return nil
}
