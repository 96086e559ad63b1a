package database

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hatlonely/dbm"
	"github.com/hatlonely/dbm/conn"
	"github.com/hatlonely/dbm/dialect"
	"github.com/pkg/errors"
)

// Column 从系统表读出的列信息
type Column struct {
	Name     string
	Type     string
	Nullable bool
	// PrimaryKey 在主键中的位置，从 1 开始，0 表示不是主键
	PrimaryKey int
}

// Catalog 各数据库读取表结构的方式
type Catalog interface {
	Tables(ctx context.Context, c conn.Connection) ([]string, error)
	// Columns 表不存在时返回空
	Columns(ctx context.Context, c conn.Connection, table string) ([]Column, error)
}

// CatalogOf 按方言返回对应的 Catalog
func CatalogOf(d *dialect.Dialect) (Catalog, error) {
	switch d.Name() {
	case dialect.SQLite.Name():
		return SQLiteCatalog{}, nil
	case dialect.Postgres.Name():
		return PostgresCatalog{Schema: "public"}, nil
	case dialect.CrateDB.Name():
		return CrateCatalog{Schema: "doc"}, nil
	case dialect.MySQL.Name():
		return MySQLCatalog{}, nil
	}
	return nil, errors.Wrapf(dbm.ErrConfiguration, "no catalog for dialect [%s]", d.Name())
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// 无法绑定参数的语句中表名直接拼接，只允许普通标识符
func checkIdentifier(table string) error {
	if !identifier.MatchString(table) {
		return errors.Wrapf(dbm.ErrInvalidArgument, "invalid table name [%s]", table)
	}
	return nil
}

func fetchStrings(ctx context.Context, c conn.Connection, query string, args ...any) ([]string, error) {
	cur, err := c.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, row := range cur.FetchAll() {
		values = append(values, str(row[0]))
	}
	return values, nil
}

// columnIndex 按列名取值，驱动返回的列名大小写不一定一致
func columnIndex(columns []string) map[string]int {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[strings.ToLower(c)] = i
	}
	return index
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func isTrue(v any) bool {
	switch strings.ToUpper(str(v)) {
	case "1", "TRUE", "YES", "T":
		return true
	}
	return false
}

type SQLiteCatalog struct{}

func (SQLiteCatalog) Tables(ctx context.Context, c conn.Connection) ([]string, error) {
	return fetchStrings(ctx, c, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
}

// Columns PRAGMA table_info 的列为 cid, name, type, notnull, dflt_value, pk
func (SQLiteCatalog) Columns(ctx context.Context, c conn.Connection, table string) ([]Column, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	cur, err := c.Execute(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	idx := columnIndex(cur.Columns())
	var columns []Column
	for _, row := range cur.FetchAll() {
		pk, err := strconv.Atoi(str(row[idx["pk"]]))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid pk of column [%s.%s]", table, str(row[idx["name"]]))
		}
		columns = append(columns, Column{
			Name:       str(row[idx["name"]]),
			Type:       str(row[idx["type"]]),
			Nullable:   !isTrue(row[idx["notnull"]]),
			PrimaryKey: pk,
		})
	}
	return columns, nil
}

type PostgresCatalog struct {
	Schema string
}

func (p PostgresCatalog) Tables(ctx context.Context, c conn.Connection) ([]string, error) {
	return fetchStrings(ctx, c, "SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name", p.Schema)
}

func (p PostgresCatalog) Columns(ctx context.Context, c conn.Connection, table string) ([]Column, error) {
	cur, err := c.Execute(ctx, "SELECT column_name, data_type, character_maximum_length, is_nullable FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position", p.Schema, table)
	if err != nil {
		return nil, err
	}
	var columns []Column
	for _, row := range cur.FetchAll() {
		typ := str(row[1])
		if row[2] != nil {
			typ = fmt.Sprintf("%s(%s)", typ, str(row[2]))
		}
		columns = append(columns, Column{Name: str(row[0]), Type: typ, Nullable: isTrue(row[3])})
	}

	pks, err := fetchStrings(ctx, c, "SELECT kcu.column_name FROM information_schema.table_constraints tc JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema AND tc.table_name = kcu.table_name WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2 ORDER BY kcu.ordinal_position", p.Schema, table)
	if err != nil {
		return nil, err
	}
	return markPrimaryKeys(columns, pks), nil
}

// CrateCatalog CrateDB 默认 schema 为 doc，SHOW COLUMNS 不返回可空性，主键以外的列视为可空
type CrateCatalog struct {
	Schema string
}

func (CrateCatalog) Tables(ctx context.Context, c conn.Connection) ([]string, error) {
	return fetchStrings(ctx, c, "SHOW TABLES")
}

func (p CrateCatalog) Columns(ctx context.Context, c conn.Connection, table string) ([]Column, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, err
	}
	cur, err := c.Execute(ctx, fmt.Sprintf("SHOW COLUMNS FROM %s", table))
	if err != nil {
		return nil, err
	}
	idx := columnIndex(cur.Columns())
	var columns []Column
	for _, row := range cur.FetchAll() {
		columns = append(columns, Column{
			Name:     str(row[idx["column_name"]]),
			Type:     str(row[idx["data_type"]]),
			Nullable: true,
		})
	}
	if len(columns) == 0 {
		return nil, nil
	}

	pks, err := fetchStrings(ctx, c, "SELECT column_name FROM information_schema.key_column_usage WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position", p.Schema, table)
	if err != nil {
		return nil, err
	}
	columns = markPrimaryKeys(columns, pks)
	for i := range columns {
		if columns[i].PrimaryKey > 0 {
			columns[i].Nullable = false
		}
	}
	return columns, nil
}

type MySQLCatalog struct{}

func (MySQLCatalog) Tables(ctx context.Context, c conn.Connection) ([]string, error) {
	return fetchStrings(ctx, c, "SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME")
}

func (MySQLCatalog) Columns(ctx context.Context, c conn.Connection, table string) ([]Column, error) {
	cur, err := c.Execute(ctx, "SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION", table)
	if err != nil {
		return nil, err
	}
	var columns []Column
	for _, row := range cur.FetchAll() {
		columns = append(columns, Column{Name: str(row[0]), Type: str(row[1]), Nullable: isTrue(row[2])})
	}

	pks, err := fetchStrings(ctx, c, "SELECT COLUMN_NAME FROM information_schema.KEY_COLUMN_USAGE WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY' ORDER BY ORDINAL_POSITION", table)
	if err != nil {
		return nil, err
	}
	return markPrimaryKeys(columns, pks), nil
}

func markPrimaryKeys(columns []Column, pks []string) []Column {
	for i, pk := range pks {
		for j := range columns {
			if columns[j].Name == pk {
				columns[j].PrimaryKey = i + 1
			}
		}
	}
	return columns
}
