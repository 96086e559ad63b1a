package model

import (
	"sort"

	"github.com/hatlonely/dbm"
	"github.com/hatlonely/dbm/dbtype"
	"github.com/pkg/errors"
)

// Field 字段定义
type Field struct {
	Name string
	Type dbtype.DBType
}

// F 构造字段定义的简写
func F(name string, typ dbtype.DBType) Field {
	return Field{Name: name, Type: typ}
}

// Schema 表结构，注册之后不再修改
type Schema struct {
	table       string
	primaryKeys []string
	fields      map[string]dbtype.DBType
	names       []string
	dynamic     bool
}

// NewSchema 注册一个表结构
// 主键必须是已声明的字段，字段名不能重复
func NewSchema(table string, primaryKeys []string, fields ...Field) (*Schema, error) {
	return newSchema(table, primaryKeys, fields, false, false)
}

// NewDynamicSchema 运行时构造的表结构，通常由数据库元信息反推得到
func NewDynamicSchema(table string, primaryKeys []string, fields ...Field) (*Schema, error) {
	return newSchema(table, primaryKeys, fields, true, false)
}

func MustNewSchema(table string, primaryKeys []string, fields ...Field) *Schema {
	s, err := NewSchema(table, primaryKeys, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func newSchema(table string, primaryKeys []string, fields []Field, dynamic bool, allowOverride bool) (*Schema, error) {
	if table == "" {
		return nil, errors.Wrap(dbm.ErrConfiguration, "table name is empty")
	}

	s := &Schema{
		table:   table,
		fields:  make(map[string]dbtype.DBType, len(fields)),
		dynamic: dynamic,
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, errors.Wrapf(dbm.ErrConfiguration, "table [%s] has a field without name", table)
		}
		if f.Type == nil {
			return nil, errors.Wrapf(dbm.ErrConfiguration, "field [%s.%s] has no type", table, f.Name)
		}
		if _, ok := s.fields[f.Name]; ok && !allowOverride {
			return nil, errors.Wrapf(dbm.ErrConfiguration, "field [%s.%s] is declared twice", table, f.Name)
		}
		s.fields[f.Name] = f.Type
	}

	seen := map[string]bool{}
	for _, pk := range primaryKeys {
		if _, ok := s.fields[pk]; !ok {
			return nil, errors.Wrapf(dbm.ErrConfiguration, "primary key [%s] is not a field of table [%s]", pk, table)
		}
		if seen[pk] {
			return nil, errors.Wrapf(dbm.ErrConfiguration, "primary key [%s] is declared twice", pk)
		}
		seen[pk] = true
		s.primaryKeys = append(s.primaryKeys, pk)
	}

	s.names = make([]string, 0, len(s.fields))
	for name := range s.fields {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)

	return s, nil
}

// Extend 派生一个新表结构，继承父结构的字段和主键
// 同名字段以子结构的定义为准
func (s *Schema) Extend(table string, fields ...Field) (*Schema, error) {
	all := make([]Field, 0, len(s.names)+len(fields))
	for _, name := range s.names {
		all = append(all, Field{Name: name, Type: s.fields[name]})
	}
	all = append(all, fields...)
	return newSchema(table, s.primaryKeys, all, s.dynamic, true)
}

func (s *Schema) Table() string {
	return s.table
}

func (s *Schema) IsDynamic() bool {
	return s.dynamic
}

// PrimaryKeys 按声明顺序返回主键
func (s *Schema) PrimaryKeys() []string {
	return append([]string(nil), s.primaryKeys...)
}

// Fields 按字典序返回全部字段名
func (s *Schema) Fields() []string {
	return append([]string(nil), s.names...)
}

// NonKeyFields 按字典序返回除主键外的字段名
func (s *Schema) NonKeyFields() []string {
	pks := map[string]bool{}
	for _, pk := range s.primaryKeys {
		pks[pk] = true
	}
	var names []string
	for _, name := range s.names {
		if !pks[name] {
			names = append(names, name)
		}
	}
	return names
}

func (s *Schema) HasField(name string) bool {
	_, ok := s.fields[name]
	return ok
}

func (s *Schema) FieldType(name string) (dbtype.DBType, bool) {
	t, ok := s.fields[name]
	return t, ok
}

// New 创建一条空记录
func (s *Schema) New() *Model {
	return &Model{schema: s, values: map[string]any{}}
}

// NewModel 创建记录并逐个赋值，任一字段校验失败则返回错误
func (s *Schema) NewModel(values map[string]any) (*Model, error) {
	m := s.New()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.Set(k, values[k]); err != nil {
			return nil, err
		}
	}
	return m, nil
}
