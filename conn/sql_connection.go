package conn

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLOptions struct {
	// Driver crate 通过 postgres 驱动连接 CrateDB 的 PostgreSQL 协议端口
	Driver   string `cfg:"driver" def:"sqlite3" validate:"oneof=sqlite3 mysql postgres crate"`
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     int    `cfg:"port"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`
	SSLMode  string `cfg:"sslMode" def:"disable"`
}

// SQLConnection 固定使用连接池中的一个连接，写语句在延迟开启的事务中执行
type SQLConnection struct {
	db   *sql.DB
	conn *sql.Conn
	tx   *sql.Tx

	// 通过 options 创建时由连接负责关闭连接池
	ownsDB bool
}

func NewSQLConnectionWithOptions(options *SQLOptions) (*SQLConnection, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	driver, dsn, err := options.dataSource()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s failed", options.Driver)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s failed", options.Driver)
	}

	c, err := NewSQLConnection(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.ownsDB = true
	return c, nil
}

// NewSQLConnection 在已有的连接池上创建连接，连接池由调用方关闭
func NewSQLConnection(db *sql.DB) (*SQLConnection, error) {
	conn, err := db.Conn(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, "acquire connection failed")
	}
	return &SQLConnection{db: db, conn: conn}, nil
}

func (o *SQLOptions) dataSource() (string, string, error) {
	switch o.Driver {
	case "sqlite3":
		if o.DSN != "" {
			return "sqlite3", o.DSN, nil
		}
		if o.Database == "" {
			return "sqlite3", ":memory:", nil
		}
		return "sqlite3", o.Database, nil
	case "mysql":
		if o.DSN != "" {
			return "mysql", o.DSN, nil
		}
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			o.Username, o.Password, o.Host, portOr(o.Port, 3306), o.Database, o.Charset), nil
	case "postgres":
		if o.DSN != "" {
			return "postgres", o.DSN, nil
		}
		return "postgres", keyValueDSN(o.Host, portOr(o.Port, 5432), o.Username, o.Password, o.Database, o.SSLMode), nil
	case "crate":
		if o.DSN != "" {
			return "postgres", o.DSN, nil
		}
		username := o.Username
		if username == "" {
			username = "crate"
		}
		return "postgres", keyValueDSN(o.Host, portOr(o.Port, 5432), username, o.Password, o.Database, o.SSLMode), nil
	}
	return "", "", errors.Errorf("unsupported driver [%s]", o.Driver)
}

func portOr(port int, def int) int {
	if port == 0 {
		return def
	}
	return port
}

// keyValueDSN lib/pq 的 key=value 格式，空值省略
func keyValueDSN(host string, port int, user, password, dbname, sslmode string) string {
	var parts []string
	add := func(k, v string) {
		if v == "" {
			return
		}
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `'`, `\'`)
		parts = append(parts, fmt.Sprintf("%s='%s'", k, v))
	}
	add("host", host)
	add("port", fmt.Sprint(port))
	add("user", user)
	add("password", password)
	add("dbname", dbname)
	add("sslmode", sslmode)
	return strings.Join(parts, " ")
}

func (c *SQLConnection) Cursor() Cursor {
	return newCursor(c)
}

func (c *SQLConnection) Execute(ctx context.Context, query string, args ...any) (Cursor, error) {
	return c.Cursor().Execute(ctx, query, args...)
}

func (c *SQLConnection) run(ctx context.Context, query string, args []any) (*result, error) {
	if IsQuery(query) {
		var rows *sql.Rows
		var err error
		if c.tx != nil {
			rows, err = c.tx.QueryContext(ctx, query, args...)
		} else {
			rows, err = c.conn.QueryContext(ctx, query, args...)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "query [%s] failed", query)
		}
		return readRows(rows)
	}

	if c.tx == nil {
		tx, err := c.conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, errors.Wrap(err, "begin transaction failed")
		}
		c.tx = tx
	}
	res, err := c.tx.ExecContext(ctx, query, args...)
	if err != nil {
		// 失败的事务在 postgres 上不可再用，回滚后下一条语句重新开启事务
		tx := c.tx
		c.tx = nil
		if rbErr := tx.Rollback(); rbErr != nil {
			return nil, errors.Wrapf(err, "exec [%s] failed, rollback failed: %v", query, rbErr)
		}
		return nil, errors.Wrapf(err, "exec [%s] failed", query)
	}
	return execResult(res), nil
}

func (c *SQLConnection) Commit(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return errors.Wrap(tx.Commit(), "commit failed")
}

// Close 回滚未提交的语句并释放连接
func (c *SQLConnection) Close() error {
	var errs []string
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil {
			errs = append(errs, err.Error())
		}
		c.tx = nil
	}
	if err := c.conn.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.ownsDB {
		if err := c.db.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close connection failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
