package query

import (
	"fmt"
	"strings"

	"github.com/hatlonely/dbm"
	"github.com/hatlonely/dbm/dialect"
	"github.com/hatlonely/dbm/model"
	"github.com/pkg/errors"
)

// Builder 把表结构和过滤条件翻译为 SQL 与参数列表，本身无状态
type Builder struct {
	dialect *dialect.Dialect
	inline  bool
}

type BuilderOption func(*Builder)

// InlineLiterals WHERE 条件中的值直接渲染为字面量，只用于日志和调试
func InlineLiterals() BuilderOption {
	return func(b *Builder) { b.inline = true }
}

func NewBuilder(d *dialect.Dialect, opts ...BuilderOption) *Builder {
	b := &Builder{dialect: d}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Dialect() *dialect.Dialect {
	return b.dialect
}

// Select SELECT <sorted fields> FROM <table><where>
func (b *Builder) Select(schema *model.Schema, filters Filters) (string, []any, error) {
	p := &params{b: b}
	where, err := b.where(schema, filters, p)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(schema.Fields(), ","), schema.Table(), where), p.args, nil
}

// Insert 写入全部字段，未设置的字段为 NULL
func (b *Builder) Insert(m *model.Model) (string, []any) {
	schema := m.Schema()
	fields := schema.Fields()
	markers := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		markers[i] = b.dialect.Placeholder(i + 1)
		args[i] = m.Value(f)
	}
	return fmt.Sprintf("INSERT INTO %s(%s) VALUES (%s)", schema.Table(), strings.Join(fields, ","), strings.Join(markers, ",")), args
}

// Update 按主键更新全部非主键字段，未设置的字段会被更新为 NULL
func (b *Builder) Update(m *model.Model) (string, []any, error) {
	schema := m.Schema()
	pks := schema.PrimaryKeys()
	if len(pks) == 0 {
		return "", nil, errors.Wrapf(dbm.ErrNoPrimaryKey, "table [%s]", schema.Table())
	}

	// SET 与 WHERE 共用一组参数，占位符连续编号
	p := &params{b: b, bind: true}
	var sets []string
	for _, f := range schema.NonKeyFields() {
		sets = append(sets, f+"="+p.add(m.Value(f)))
	}
	if len(sets) == 0 {
		return "", nil, errors.Wrapf(dbm.ErrInvalidArgument, "table [%s] has no field to update", schema.Table())
	}

	filters := Filters{}
	for _, pk := range pks {
		filters[pk] = m.Value(pk)
	}
	where, err := b.where(schema, filters, p)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("UPDATE %s SET %s%s", schema.Table(), strings.Join(sets, ","), where), p.args, nil
}

// Delete DELETE FROM <table><where>
func (b *Builder) Delete(schema *model.Schema, filters Filters) (string, []any, error) {
	p := &params{b: b}
	where, err := b.where(schema, filters, p)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s%s", schema.Table(), where), p.args, nil
}

// Describe 建表语句
//
//	CREATE TABLE <table> (
//	<field> <type>[ NOT NULL],
//	PRIMARY KEY (<pk1>,<pk2>)
//	)
func (b *Builder) Describe(schema *model.Schema) (string, error) {
	var columns []string
	for _, f := range schema.Fields() {
		typ, _ := schema.FieldType(f)
		sqlType, err := b.dialect.SQLType(typ)
		if err != nil {
			return "", errors.WithMessagef(err, "field [%s.%s]", schema.Table(), f)
		}
		column := f + " " + sqlType
		if !typ.IsNullable() {
			column += " NOT NULL"
		}
		columns = append(columns, column)
	}
	if pks := schema.PrimaryKeys(); len(pks) > 0 {
		columns = append(columns, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ",")))
	}
	return "CREATE TABLE " + schema.Table() + " (\n" + strings.Join(columns, ",\n") + "\n)", nil
}

// DropTable 删除表
func (b *Builder) DropTable(schema *model.Schema) string {
	return "DROP TABLE IF EXISTS " + schema.Table()
}
