package database

import (
	"github.com/hatlonely/dbm/conn"
	"github.com/hatlonely/dbm/dialect"
	"github.com/hatlonely/dbm/log"
	"github.com/hatlonely/dbm/ref"
	"github.com/pkg/errors"
)

const namespace = "github.com/hatlonely/dbm/database"

func init() {
	ref.MustRegister(namespace, "Database", NewWithOptions)
	ref.MustRegister(namespace, "SQLite", NewSQLiteWithOptions)
	ref.MustRegister(namespace, "Postgres", NewPostgresWithOptions)
	ref.MustRegister(namespace, "Crate", NewCrateWithOptions)
	ref.MustRegister(namespace, "MySQL", NewMySQLWithOptions)
}

// Options 任意连接加方言
type Options struct {
	Dialect    string           `cfg:"dialect" validate:"required"`
	Connection *ref.TypeOptions `cfg:"connection" validate:"required"`
	Logger     *ref.TypeOptions `cfg:"logger"`
}

type SQLiteOptions struct {
	// Database 文件路径，为空时使用内存库
	Database string           `cfg:"database"`
	Logger   *ref.TypeOptions `cfg:"logger"`
}

type PostgresOptions struct {
	Host     string           `cfg:"host" def:"localhost"`
	Port     int              `cfg:"port" def:"5432"`
	Database string           `cfg:"database"`
	Username string           `cfg:"username"`
	Password string           `cfg:"password"`
	SSLMode  string           `cfg:"sslMode" def:"disable"`
	Logger   *ref.TypeOptions `cfg:"logger"`
}

type CrateOptions struct {
	Host     string           `cfg:"host" def:"localhost"`
	Port     int              `cfg:"port" def:"5432"`
	Username string           `cfg:"username" def:"crate"`
	Password string           `cfg:"password"`
	Schema   string           `cfg:"schema" def:"doc"`
	Logger   *ref.TypeOptions `cfg:"logger"`
}

type MySQLOptions struct {
	Host     string           `cfg:"host" def:"localhost"`
	Port     int              `cfg:"port" def:"3306"`
	Database string           `cfg:"database" validate:"required"`
	Username string           `cfg:"username"`
	Password string           `cfg:"password"`
	Charset  string           `cfg:"charset" def:"utf8mb4"`
	Logger   *ref.TypeOptions `cfg:"logger"`
}

func NewWithOptions(options *Options) (*Database, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	d, err := dialect.Get(options.Dialect)
	if err != nil {
		return nil, err
	}
	c, err := conn.NewConnectionWithOptions(options.Connection)
	if err != nil {
		return nil, err
	}
	return open(c, d, nil, options.Logger)
}

func NewSQLiteWithOptions(options *SQLiteOptions) (*Database, error) {
	if options == nil {
		options = &SQLiteOptions{}
	}
	c, err := conn.NewSQLConnectionWithOptions(&conn.SQLOptions{Driver: "sqlite3", Database: options.Database})
	if err != nil {
		return nil, err
	}
	return open(c, dialect.SQLite, SQLiteCatalog{}, options.Logger)
}

func NewPostgresWithOptions(options *PostgresOptions) (*Database, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	c, err := conn.NewSQLConnectionWithOptions(&conn.SQLOptions{
		Driver:   "postgres",
		Host:     options.Host,
		Port:     options.Port,
		Database: options.Database,
		Username: options.Username,
		Password: options.Password,
		SSLMode:  options.SSLMode,
	})
	if err != nil {
		return nil, err
	}
	return open(c, dialect.Postgres, PostgresCatalog{Schema: "public"}, options.Logger)
}

func NewCrateWithOptions(options *CrateOptions) (*Database, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	c, err := conn.NewSQLConnectionWithOptions(&conn.SQLOptions{
		Driver:   "crate",
		Host:     options.Host,
		Port:     options.Port,
		Username: options.Username,
		Password: options.Password,
		SSLMode:  "disable",
	})
	if err != nil {
		return nil, err
	}
	schema := options.Schema
	if schema == "" {
		schema = "doc"
	}
	return open(c, dialect.CrateDB, CrateCatalog{Schema: schema}, options.Logger)
}

func NewMySQLWithOptions(options *MySQLOptions) (*Database, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	c, err := conn.NewSQLConnectionWithOptions(&conn.SQLOptions{
		Driver:   "mysql",
		Host:     options.Host,
		Port:     options.Port,
		Database: options.Database,
		Username: options.Username,
		Password: options.Password,
		Charset:  options.Charset,
	})
	if err != nil {
		return nil, err
	}
	return open(c, dialect.MySQL, MySQLCatalog{}, options.Logger)
}

// NewDatabaseWithOptions 通过 ref 创建，Type 为 Database, SQLite, Postgres, Crate, MySQL 之一
func NewDatabaseWithOptions(options *ref.TypeOptions) (*Database, error) {
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create database")
	}
	db, ok := obj.(*Database)
	if !ok {
		return nil, errors.Errorf("%T is not a *Database", obj)
	}
	return db, nil
}

func open(c conn.Connection, d *dialect.Dialect, catalog Catalog, loggerOptions *ref.TypeOptions) (*Database, error) {
	l, err := log.NewLoggerWithOptions(loggerOptions)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	db, err := New(c, d, catalog, l)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return db, nil
}
