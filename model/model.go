package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hatlonely/dbm"
	"github.com/hatlonely/dbm/dbtype"
	"github.com/pkg/errors"
)

// Model 一条记录，值在写入时已按字段类型规范化
type Model struct {
	schema *Schema
	values map[string]any
}

func (m *Model) Schema() *Schema {
	return m.schema
}

// Set 写入字段值
//   - 字段不存在返回 ErrFieldNotFound
//   - 非空字段写入 nil 返回 ErrNotNullViolation
//   - 无法转换返回 ErrTypeMismatch
func (m *Model) Set(field string, value any) error {
	typ, ok := m.schema.fields[field]
	if !ok {
		return errors.Wrapf(dbm.ErrFieldNotFound, "field [%s] not in table [%s]", field, m.schema.table)
	}

	v, ok := typ.Coerce(value)
	if !ok {
		if dbtype.IsNull(value) {
			return errors.Wrapf(dbm.ErrNotNullViolation, "field [%s.%s]", m.schema.table, field)
		}
		return errors.Wrapf(dbm.ErrTypeMismatch, "field [%s.%s] expect %s, got %T", m.schema.table, field, typ.Kind(), value)
	}

	m.values[field] = v
	return nil
}

func (m *Model) MustSet(field string, value any) *Model {
	if err := m.Set(field, value); err != nil {
		panic(err)
	}
	return m
}

// Get 返回字段值，未设置的字段返回 false
func (m *Model) Get(field string) (any, bool) {
	v, ok := m.values[field]
	return v, ok
}

// Value 返回字段值，未设置时返回 nil
func (m *Model) Value(field string) any {
	return m.values[field]
}

func (m *Model) IsSet(field string) bool {
	_, ok := m.values[field]
	return ok
}

// Unset 清除字段值
func (m *Model) Unset(field string) error {
	if !m.schema.HasField(field) {
		return errors.Wrapf(dbm.ErrFieldNotFound, "field [%s] not in table [%s]", field, m.schema.table)
	}
	delete(m.values, field)
	return nil
}

func (m *Model) GetInt64(field string) (int64, bool) {
	v, ok := m.values[field].(int64)
	return v, ok
}

func (m *Model) GetFloat64(field string) (float64, bool) {
	v, ok := m.values[field].(float64)
	return v, ok
}

func (m *Model) GetString(field string) (string, bool) {
	v, ok := m.values[field].(string)
	return v, ok
}

func (m *Model) GetBool(field string) (bool, bool) {
	v, ok := m.values[field].(bool)
	return v, ok
}

func (m *Model) GetTime(field string) (time.Time, bool) {
	v, ok := m.values[field].(time.Time)
	return v, ok
}

// Values 返回已设置字段的拷贝
func (m *Model) Values() map[string]any {
	values := make(map[string]any, len(m.values))
	for k, v := range m.values {
		values[k] = v
	}
	return values
}

// Equal 表名和字段值都相同，未设置的字段与 NULL 等价
func (m *Model) Equal(other *Model) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.schema.table != other.schema.table {
		return false
	}
	for k, v := range m.values {
		if !valueEqual(v, other.values[k]) {
			return false
		}
	}
	for k, v := range other.values {
		if !valueEqual(m.values[k], v) {
			return false
		}
	}
	return true
}

func (m *Model) String() string {
	var sb strings.Builder
	sb.WriteString(m.schema.table)
	sb.WriteString("{")
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", k, m.values[k])
	}
	sb.WriteString("}")
	return sb.String()
}

func valueEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}
