package query

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/dbm"
	"github.com/hatlonely/dbm/dbtype"
	"github.com/hatlonely/dbm/model"
	"github.com/pkg/errors"
)

// Filters 字段过滤条件，值可以是单个值或切片，切片中的 nil 表示 IS NULL
type Filters map[string]any

// params 按出现顺序收集参数，并生成对应的占位符
type params struct {
	b    *Builder
	bind bool
	args []any
}

func (p *params) add(v any) string {
	if p.b.inline && !p.bind {
		return literal(v)
	}
	p.args = append(p.args, v)
	return p.b.dialect.Placeholder(len(p.args))
}

// toList 单个值包装为列表，[]byte 视为单个值
func toList(v any) []any {
	if v == nil {
		return []any{nil}
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		list := make([]any, rv.Len())
		for i := range list {
			list[i] = rv.Index(i).Interface()
		}
		return list
	}
	return []any{v}
}

func (b *Builder) where(schema *model.Schema, filters Filters, p *params) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		if !schema.HasField(k) {
			return "", errors.Wrapf(dbm.ErrFieldNotFound, "filter [%s] not in table [%s]", k, schema.Table())
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		typ, _ := schema.FieldType(k)
		conds = append(conds, b.fieldCondition(k, typ, toList(filters[k]), p))
	}
	return " WHERE " + strings.Join(conds, " AND "), nil
}

func (b *Builder) fieldCondition(field string, typ dbtype.DBType, values []any, p *params) string {
	hasNull := false
	var markers []string
	for _, v := range values {
		if dbtype.IsNull(v) {
			hasNull = true
			continue
		}
		// 能按列类型转换的值先转换，保证与写入时的表示一致
		if cv, ok := typ.Coerce(v); ok && cv != nil {
			v = cv
		}
		markers = append(markers, p.add(v))
	}

	var parts []string
	if hasNull {
		parts = append(parts, field+" IS NULL")
	}
	if len(markers) > 0 {
		parts = append(parts, fmt.Sprintf("%s IN (%s)", field, strings.Join(markers, ",")))
	}

	switch len(parts) {
	case 0:
		// 空列表不匹配任何行
		return "1=0"
	case 1:
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// literal 把值渲染为 SQL 字面量，字符串中的单引号会被转义
func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return "'" + x.Format("2006-01-02 15:04:05.999999999Z07:00") + "'"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return "'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
}
