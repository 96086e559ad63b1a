package conn

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormOptions struct {
	Driver string `cfg:"driver" def:"sqlite" validate:"oneof=sqlite mysql"`
	DSN    string `cfg:"dsn" validate:"required"`
}

// GormConnection 在 gorm.DB 上执行原生 SQL，便于和已有的 gorm 代码共用连接
type GormConnection struct {
	db *gorm.DB
	tx *gorm.DB

	ownsDB bool
}

func NewGormConnectionWithOptions(options *GormOptions) (*GormConnection, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	config := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	var db *gorm.DB
	var err error
	switch options.Driver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(options.DSN), config)
	case "mysql":
		db, err = gorm.Open(mysql.Open(options.DSN), config)
	default:
		return nil, errors.Errorf("unsupported gorm driver [%s]", options.Driver)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open gorm %s failed", options.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB failed")
	}
	// 内存 sqlite 每个连接是一个独立的库
	if options.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	}

	c := NewGormConnection(db)
	c.ownsDB = true
	return c, nil
}

// NewGormConnection 使用已有的 gorm.DB，由调用方关闭
func NewGormConnection(db *gorm.DB) *GormConnection {
	return &GormConnection{db: db}
}

func (c *GormConnection) Cursor() Cursor {
	return newCursor(c)
}

func (c *GormConnection) Execute(ctx context.Context, query string, args ...any) (Cursor, error) {
	return c.Cursor().Execute(ctx, query, args...)
}

func (c *GormConnection) run(ctx context.Context, query string, args []any) (*result, error) {
	if IsQuery(query) {
		db := c.db
		if c.tx != nil {
			db = c.tx
		}
		rows, err := db.WithContext(ctx).Raw(query, args...).Rows()
		if err != nil {
			return nil, errors.Wrapf(err, "query [%s] failed", query)
		}
		return readRows(rows)
	}

	if c.tx == nil {
		tx := c.db.WithContext(ctx).Begin(&sql.TxOptions{})
		if tx.Error != nil {
			return nil, errors.Wrap(tx.Error, "begin transaction failed")
		}
		c.tx = tx
	}
	res := c.tx.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		tx := c.tx
		c.tx = nil
		if rbErr := tx.Rollback().Error; rbErr != nil {
			return nil, errors.Wrapf(res.Error, "exec [%s] failed, rollback failed: %v", query, rbErr)
		}
		return nil, errors.Wrapf(res.Error, "exec [%s] failed", query)
	}
	return &result{rowCount: res.RowsAffected}, nil
}

func (c *GormConnection) Commit(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return errors.Wrap(tx.Commit().Error, "commit failed")
}

// Close 回滚未提交的语句，连接由自己打开时一并关闭
func (c *GormConnection) Close() error {
	var errs []string
	if c.tx != nil {
		if err := c.tx.Rollback().Error; err != nil {
			errs = append(errs, err.Error())
		}
		c.tx = nil
	}
	if c.ownsDB {
		sqlDB, err := c.db.DB()
		if err != nil {
			errs = append(errs, err.Error())
		} else if err := sqlDB.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close connection failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
