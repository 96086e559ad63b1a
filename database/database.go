// Package database 在连接之上提供表结构发现、建表和增删改查
package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hatlonely/dbm"
	"github.com/hatlonely/dbm/conn"
	"github.com/hatlonely/dbm/dbtype"
	"github.com/hatlonely/dbm/dialect"
	"github.com/hatlonely/dbm/log"
	"github.com/hatlonely/dbm/log/logger"
	"github.com/hatlonely/dbm/model"
	"github.com/hatlonely/dbm/query"
	"github.com/pkg/errors"
)

// Database 单个连接上的数据库操作，不支持并发使用。
// 所有写操作执行后立即提交。
type Database struct {
	conn    conn.Connection
	dialect *dialect.Dialect
	builder *query.Builder
	catalog Catalog
	logger  logger.Logger
}

// New catalog 为空时按方言选择，logger 为空时使用默认日志器
func New(c conn.Connection, d *dialect.Dialect, catalog Catalog, l logger.Logger) (*Database, error) {
	if c == nil || d == nil {
		return nil, errors.Wrap(dbm.ErrConfiguration, "connection and dialect are required")
	}
	if catalog == nil {
		var err error
		if catalog, err = CatalogOf(d); err != nil {
			return nil, err
		}
	}
	if l == nil {
		l = log.Default()
	}
	return &Database{
		conn:    c,
		dialect: d,
		builder: query.NewBuilder(d),
		catalog: catalog,
		logger:  l.With("dialect", d.Name()),
	}, nil
}

func (db *Database) Dialect() *dialect.Dialect {
	return db.dialect
}

func (db *Database) Connection() conn.Connection {
	return db.conn
}

func (db *Database) Close() error {
	return db.conn.Close()
}

func (db *Database) GetTables(ctx context.Context) ([]string, error) {
	tables, err := db.catalog.Tables(ctx, db.conn)
	if err != nil {
		return nil, errors.WithMessage(err, "get tables failed")
	}
	return tables, nil
}

// TableExists 表名不区分大小写，postgres 和 crate 会把未加引号的标识符转为小写
func (db *Database) TableExists(ctx context.Context, table string) (bool, error) {
	_, ok, err := db.lookupTable(ctx, table)
	return ok, err
}

// lookupTable 返回数据库中实际的表名，优先完全匹配
func (db *Database) lookupTable(ctx context.Context, table string) (string, bool, error) {
	tables, err := db.GetTables(ctx)
	if err != nil {
		return "", false, err
	}
	var folded string
	for _, t := range tables {
		if t == table {
			return t, true, nil
		}
		if folded == "" && strings.EqualFold(t, table) {
			folded = t
		}
	}
	return folded, folded != "", nil
}

func (db *Database) columns(ctx context.Context, table string) ([]Column, error) {
	live, exists, err := db.lookupTable(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Wrapf(dbm.ErrNotFound, "table [%s]", table)
	}
	columns, err := db.catalog.Columns(ctx, db.conn, live)
	if err != nil {
		return nil, errors.WithMessagef(err, "get columns of [%s] failed", table)
	}
	if len(columns) == 0 {
		return nil, errors.Wrapf(dbm.ErrNotFound, "table [%s] has no columns", table)
	}
	return columns, nil
}

// GetColumns 表中的列名，按表定义的顺序
func (db *Database) GetColumns(ctx context.Context, table string) ([]string, error) {
	columns, err := db.columns(ctx, table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names, nil
}

// ModelExists 表不存在返回 false，存在但列与字段不一致返回 ErrSchemaMismatch
func (db *Database) ModelExists(ctx context.Context, schema *model.Schema) (bool, error) {
	table, exists, err := db.lookupTable(ctx, schema.Table())
	if err != nil || !exists {
		return false, err
	}
	columns, err := db.catalog.Columns(ctx, db.conn, table)
	if err != nil {
		return false, errors.WithMessagef(err, "get columns of [%s] failed", schema.Table())
	}

	// postgres 和 crate 会把未加引号的标识符转为小写
	live := make([]string, len(columns))
	for i, c := range columns {
		live[i] = strings.ToLower(c.Name)
	}
	fields := schema.Fields()
	declared := make([]string, len(fields))
	for i, f := range fields {
		declared[i] = strings.ToLower(f)
	}
	sort.Strings(live)
	sort.Strings(declared)

	if strings.Join(live, ",") != strings.Join(declared, ",") {
		return false, errors.Wrapf(dbm.ErrSchemaMismatch, "table [%s] has columns %v, model declares %v", schema.Table(), live, declared)
	}
	return true, nil
}

// CreateModel 表已存在时只记录日志
func (db *Database) CreateModel(ctx context.Context, schema *model.Schema) error {
	exists, err := db.ModelExists(ctx, schema)
	if err != nil {
		return err
	}
	if exists {
		db.logger.InfoContext(ctx, "table already exists", "table", schema.Table())
		return nil
	}

	stmt, err := db.builder.Describe(schema)
	if err != nil {
		return err
	}
	return db.execute(ctx, stmt, nil)
}

// DropModel 删除表，表不存在时不报错
func (db *Database) DropModel(ctx context.Context, schema *model.Schema) error {
	return db.execute(ctx, db.builder.DropTable(schema), nil)
}

// Insert 只接受单条 *model.Model
func (db *Database) Insert(ctx context.Context, record any) error {
	m, ok := record.(*model.Model)
	if !ok || m == nil {
		return errors.Wrapf(dbm.ErrInvalidArgument, "insert expects *model.Model, got %T", record)
	}
	stmt, args := db.builder.Insert(m)
	return db.execute(ctx, stmt, args)
}

// Update 按主键更新，返回影响的行数。
// 传入切片时逐条更新并累加；非记录或没有主键的记录返回 0。
func (db *Database) Update(ctx context.Context, record any) (int64, error) {
	switch v := record.(type) {
	case []*model.Model:
		var total int64
		for _, m := range v {
			n, err := db.Update(ctx, m)
			if err != nil {
				return total, err
			}
			total += n
		}
		return total, nil
	case *model.Model:
		if v == nil {
			break
		}
		return db.updateOne(ctx, v)
	}
	db.logger.WarnContext(ctx, "update ignores non-record input", "type", fmt.Sprintf("%T", record))
	return 0, nil
}

func (db *Database) updateOne(ctx context.Context, m *model.Model) (int64, error) {
	stmt, args, err := db.builder.Update(m)
	if errors.Is(err, dbm.ErrNoPrimaryKey) || errors.Is(err, dbm.ErrInvalidArgument) {
		db.logger.WarnContext(ctx, "update skipped", "table", m.Schema().Table(), "reason", err.Error())
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return db.executeCount(ctx, stmt, args)
}

// Delete 没有过滤条件时必须 overrideDeleteAll 才会删除全表
func (db *Database) Delete(ctx context.Context, schema *model.Schema, overrideDeleteAll bool, filters query.Filters) (int64, error) {
	if len(filters) == 0 && !overrideDeleteAll {
		db.logger.WarnContext(ctx, "delete without filters is ignored, set overrideDeleteAll to delete all rows", "table", schema.Table())
		return 0, nil
	}
	stmt, args, err := db.builder.Delete(schema, filters)
	if err != nil {
		return 0, err
	}
	return db.executeCount(ctx, stmt, args)
}

// Select 查询并按结果集的列名回填记录
func (db *Database) Select(ctx context.Context, schema *model.Schema, filters query.Filters) ([]*model.Model, error) {
	stmt, args, err := db.builder.Select(schema, filters)
	if err != nil {
		return nil, err
	}
	db.logger.DebugContext(ctx, "execute", "sql", stmt, "args", args)
	cur, err := db.conn.Execute(ctx, stmt, args...)
	if err != nil {
		return nil, errors.WithMessagef(err, "select from [%s] failed", schema.Table())
	}

	fields := resolveColumns(schema, cur.Columns())
	var records []*model.Model
	for _, row := range cur.FetchAll() {
		m := schema.New()
		for i, v := range row {
			if fields[i] == "" || dbtype.IsNull(v) {
				continue
			}
			if err := m.Set(fields[i], v); err != nil {
				return nil, errors.WithMessage(err, "hydrate record failed")
			}
		}
		records = append(records, m)
	}
	return records, nil
}

// resolveColumns 结果集列名对应的字段名，不认识的列为空
func resolveColumns(schema *model.Schema, columns []string) []string {
	lower := map[string]string{}
	for _, f := range schema.Fields() {
		lower[strings.ToLower(f)] = f
	}
	fields := make([]string, len(columns))
	for i, c := range columns {
		if schema.HasField(c) {
			fields[i] = c
		} else {
			fields[i] = lower[strings.ToLower(c)]
		}
	}
	return fields
}

// GetModelMeta 从表结构反向生成动态 Schema
func (db *Database) GetModelMeta(ctx context.Context, table string) (*model.Schema, error) {
	columns, err := db.columns(ctx, table)
	if err != nil {
		return nil, err
	}

	fields := make([]model.Field, 0, len(columns))
	var keyed []Column
	for _, c := range columns {
		typ, err := db.dialect.GetType(c.Type, dbtype.Nullable(c.Nullable))
		if err != nil {
			return nil, errors.WithMessagef(err, "column [%s.%s]", table, c.Name)
		}
		fields = append(fields, model.F(c.Name, typ))
		if c.PrimaryKey > 0 {
			keyed = append(keyed, c)
		}
	}
	sort.Slice(keyed, func(i, j int) bool { return keyed[i].PrimaryKey < keyed[j].PrimaryKey })
	pks := make([]string, len(keyed))
	for i, c := range keyed {
		pks[i] = c.Name
	}
	return model.NewDynamicSchema(table, pks, fields...)
}

func (db *Database) execute(ctx context.Context, stmt string, args []any) error {
	_, err := db.executeCount(ctx, stmt, args)
	return err
}

// executeCount 执行写语句并提交
func (db *Database) executeCount(ctx context.Context, stmt string, args []any) (int64, error) {
	db.logger.DebugContext(ctx, "execute", "sql", stmt, "args", args)
	cur, err := db.conn.Execute(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	if err := db.conn.Commit(ctx); err != nil {
		return 0, err
	}
	return cur.RowCount(), nil
}
