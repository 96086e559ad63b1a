// Package conn 数据库连接与游标的抽象
//
// Connection 上的写语句在一个延迟开启的事务中执行，直到 Commit 才生效；
// 查询语句的结果在 Execute 返回前全部读入内存，底层的 rows 随即关闭。
package conn

import (
	"context"
	"strings"

	"github.com/hatlonely/dbm/ref"
	"github.com/pkg/errors"
)

// Cursor 执行语句并读取结果
type Cursor interface {
	Execute(ctx context.Context, query string, args ...any) (Cursor, error)
	FetchAll() [][]any
	FetchOne() []any
	FetchMany(n int) [][]any
	// RowCount 查询为结果行数，写语句为影响的行数
	RowCount() int64
	Columns() []string
}

type Connection interface {
	Cursor() Cursor
	Execute(ctx context.Context, query string, args ...any) (Cursor, error)
	Commit(ctx context.Context) error
	Close() error
}

func init() {
	ref.MustRegisterT[*SQLConnection](NewSQLConnectionWithOptions)
	ref.MustRegisterT[*GormConnection](NewGormConnectionWithOptions)
	ref.MustRegisterT[*ObservableConnection](NewObservableConnectionWithOptions)
}

// NewConnectionWithOptions 通过 ref 创建连接
func NewConnectionWithOptions(options *ref.TypeOptions) (Connection, error) {
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create connection")
	}
	c, ok := obj.(Connection)
	if !ok {
		return nil, errors.Errorf("%T does not implement Connection", obj)
	}
	return c, nil
}

var queryKeywords = map[string]bool{
	"SELECT":   true,
	"PRAGMA":   true,
	"SHOW":     true,
	"WITH":     true,
	"VALUES":   true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
}

// Statement 语句的第一个关键字，小写
func Statement(query string) string {
	query = strings.TrimLeft(query, " \t\r\n(")
	if i := strings.IndexAny(query, " \t\r\n("); i >= 0 {
		query = query[:i]
	}
	return strings.ToLower(query)
}

// IsQuery 是否为返回结果集的语句
func IsQuery(query string) bool {
	return queryKeywords[strings.ToUpper(Statement(query))]
}
