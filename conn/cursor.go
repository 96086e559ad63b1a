package conn

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

type result struct {
	columns  []string
	rows     [][]any
	rowCount int64
}

// runner 连接的执行逻辑，游标只负责保存结果
type runner interface {
	run(ctx context.Context, query string, args []any) (*result, error)
}

// resultCursor 缓存一次执行的全部结果
type resultCursor struct {
	runner runner
	result *result
	pos    int
}

func newCursor(r runner) *resultCursor {
	return &resultCursor{runner: r, result: &result{rowCount: -1}}
}

func (c *resultCursor) Execute(ctx context.Context, query string, args ...any) (Cursor, error) {
	res, err := c.runner.run(ctx, query, args)
	if err != nil {
		return nil, err
	}
	c.result = res
	c.pos = 0
	return c, nil
}

func (c *resultCursor) FetchAll() [][]any {
	rows := c.result.rows[c.pos:]
	c.pos = len(c.result.rows)
	return rows
}

func (c *resultCursor) FetchOne() []any {
	if c.pos >= len(c.result.rows) {
		return nil
	}
	row := c.result.rows[c.pos]
	c.pos++
	return row
}

func (c *resultCursor) FetchMany(n int) [][]any {
	end := c.pos + n
	if n < 0 || end > len(c.result.rows) {
		end = len(c.result.rows)
	}
	rows := c.result.rows[c.pos:end]
	c.pos = end
	return rows
}

func (c *resultCursor) RowCount() int64 {
	return c.result.rowCount
}

func (c *resultCursor) Columns() []string {
	return c.result.columns
}

// readRows 读取全部行并关闭 rows
func readRows(rows *sql.Rows) (*result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns failed")
	}

	res := &result{columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan row failed")
		}
		for i, v := range values {
			// 驱动会复用 []byte 的底层内存
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.rows = append(res.rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rows failed")
	}
	res.rowCount = int64(len(res.rows))
	return res, nil
}

func execResult(r sql.Result) *result {
	n, err := r.RowsAffected()
	if err != nil {
		n = -1
	}
	return &result{rowCount: n}
}
