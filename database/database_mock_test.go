package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hatlonely/dbm"
	"github.com/hatlonely/dbm/conn"
	"github.com/hatlonely/dbm/dbtype"
	"github.com/hatlonely/dbm/dialect"
	"github.com/hatlonely/dbm/model"
	"github.com/hatlonely/dbm/query"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	postgresTables   = "SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name"
	postgresColumns  = "SELECT column_name, data_type, character_maximum_length, is_nullable FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position"
	postgresKeys     = "SELECT kcu.column_name FROM information_schema.table_constraints tc"
	crateKeys        = "SELECT column_name FROM information_schema.key_column_usage WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position"
	mysqlTables      = "SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME"
	mysqlColumns     = "SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION"
	mysqlPrimaryKeys = "SELECT COLUMN_NAME FROM information_schema.KEY_COLUMN_USAGE WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY' ORDER BY ORDINAL_POSITION"
)

func newMockDatabase(t *testing.T, d *dialect.Dialect) (*Database, sqlmock.Sqlmock) {
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := conn.NewSQLConnection(db)
	require.NoError(t, err)
	l, _ := newBufferLogger()
	database, err := New(c, d, nil, l)
	require.NoError(t, err)
	return database, mk
}

func TestPostgresCreateModel(t *testing.T) {
	db, mk := newMockDatabase(t, dialect.Postgres)
	ctx := context.Background()

	mk.ExpectQuery(regexp.QuoteMeta(postgresTables)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}))
	mk.ExpectBegin()
	mk.ExpectExec(regexp.QuoteMeta("CREATE TABLE log_timestamp_model (\nmodel_id TEXT,\ntimestamp TIMESTAMP,\nPRIMARY KEY (model_id)\n)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mk.ExpectCommit()

	require.NoError(t, db.CreateModel(ctx, logTimestamp))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestPostgresFailedInsertRollsBack(t *testing.T) {
	db, mk := newMockDatabase(t, dialect.Postgres)
	ctx := context.Background()
	insert := regexp.QuoteMeta("INSERT INTO simple_model(float_column,integer_column,model_id) VALUES ($1,$2,$3)")

	mk.ExpectBegin()
	mk.ExpectExec(insert).
		WithArgs(nil, nil, "a").
		WillReturnError(errors.New(`duplicate key value violates unique constraint "simple_model_pkey"`))
	mk.ExpectRollback()
	mk.ExpectBegin()
	mk.ExpectExec(insert).
		WithArgs(nil, nil, "b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mk.ExpectCommit()

	require.Error(t, db.Insert(ctx, simpleModel.New().MustSet("model_id", "a")))
	require.NoError(t, db.Insert(ctx, simpleModel.New().MustSet("model_id", "b")))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestPostgresTableNameFolding(t *testing.T) {
	db, mk := newMockDatabase(t, dialect.Postgres)
	ctx := context.Background()
	mixedCase := model.MustNewSchema("SimpleModel", []string{"model_id"},
		model.F("model_id", dbtype.NewString()),
		model.F("integer_column", dbtype.NewInteger()),
	)

	mk.ExpectQuery(regexp.QuoteMeta(postgresTables)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("simplemodel"))
	mk.ExpectQuery(regexp.QuoteMeta(postgresTables)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("simplemodel"))
	// 列信息按数据库中的实际表名查询
	mk.ExpectQuery(regexp.QuoteMeta(postgresColumns)).
		WithArgs("public", "simplemodel").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "character_maximum_length", "is_nullable"}).
			AddRow("model_id", "text", nil, "NO").
			AddRow("integer_column", "integer", nil, "YES"))
	mk.ExpectQuery(regexp.QuoteMeta(postgresKeys)).
		WithArgs("public", "simplemodel").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("model_id"))

	exists, err := db.TableExists(ctx, "SimpleModel")
	require.NoError(t, err)
	require.True(t, exists)
	// 表已存在，不会再次建表
	require.NoError(t, db.CreateModel(ctx, mixedCase))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestPostgresSelectHydratesByColumnName(t *testing.T) {
	db, mk := newMockDatabase(t, dialect.Postgres)
	ctx := context.Background()

	// 结果集的列顺序与字段排序不同
	mk.ExpectQuery(regexp.QuoteMeta("SELECT float_column,integer_column,model_id FROM simple_model WHERE (integer_column IS NULL OR integer_column IN ($1)) AND model_id IN ($2,$3)")).
		WithArgs(int64(3), "a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"model_id", "float_column", "integer_column"}).
			AddRow("a", 1.5, int64(3)).
			AddRow("b", nil, nil))

	records, err := db.Select(ctx, simpleModel, query.Filters{
		"model_id":       []string{"a", "b"},
		"integer_column": []any{nil, 3},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.True(t, records[0].Equal(simpleModel.New().MustSet("model_id", "a").MustSet("float_column", 1.5).MustSet("integer_column", 3)))
	require.True(t, records[1].Equal(simpleModel.New().MustSet("model_id", "b")))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestPostgresUnknownFilterRunsNoQuery(t *testing.T) {
	db, mk := newMockDatabase(t, dialect.Postgres)

	_, err := db.Select(context.Background(), simpleModel, query.Filters{"unknown": 1})
	require.True(t, errors.Is(err, dbm.ErrFieldNotFound))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestPostgresGetModelMeta(t *testing.T) {
	db, mk := newMockDatabase(t, dialect.Postgres)
	ctx := context.Background()

	mk.ExpectQuery(regexp.QuoteMeta(postgresTables)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("char_n_model").AddRow("simple_model"))
	mk.ExpectQuery(regexp.QuoteMeta(postgresColumns)).
		WithArgs("public", "char_n_model").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "character_maximum_length", "is_nullable"}).
			AddRow("model_id", "text", nil, "NO").
			AddRow("char_column", "character varying", int64(5), "YES").
			AddRow("created", "timestamp without time zone", nil, "YES"))
	mk.ExpectQuery(regexp.QuoteMeta(postgresKeys)).
		WithArgs("public", "char_n_model").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("model_id"))

	meta, err := db.GetModelMeta(ctx, "char_n_model")
	require.NoError(t, err)
	require.True(t, meta.IsDynamic())
	require.Equal(t, []string{"char_column", "created", "model_id"}, meta.Fields())
	require.Equal(t, []string{"model_id"}, meta.PrimaryKeys())

	typ, _ := meta.FieldType("char_column")
	require.Equal(t, dbtype.KindCharN, typ.Kind())
	require.Equal(t, 5, typ.Length())
	typ, _ = meta.FieldType("created")
	require.Equal(t, dbtype.KindDateTime, typ.Kind())
	typ, _ = meta.FieldType("model_id")
	require.False(t, typ.IsNullable())
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestPostgresUnsupportedNativeType(t *testing.T) {
	db, mk := newMockDatabase(t, dialect.Postgres)

	mk.ExpectQuery(regexp.QuoteMeta(postgresTables)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("geo"))
	mk.ExpectQuery(regexp.QuoteMeta(postgresColumns)).
		WithArgs("public", "geo").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "character_maximum_length", "is_nullable"}).
			AddRow("shape", "geometry", nil, "YES"))
	mk.ExpectQuery(regexp.QuoteMeta(postgresKeys)).
		WithArgs("public", "geo").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}))

	_, err := db.GetModelMeta(context.Background(), "geo")
	require.True(t, errors.Is(err, dbm.ErrUnsupportedType))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestCrate(t *testing.T) {
	db, mk := newMockDatabase(t, dialect.CrateDB)
	ctx := context.Background()

	mk.ExpectQuery(regexp.QuoteMeta("SHOW TABLES")).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("log_timestamp_model"))
	mk.ExpectQuery(regexp.QuoteMeta("SHOW COLUMNS FROM log_timestamp_model")).
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("model_id", "text").
			AddRow("timestamp", "timestamp with time zone"))
	mk.ExpectQuery(regexp.QuoteMeta(crateKeys)).
		WithArgs("doc", "log_timestamp_model").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("model_id"))

	exists, err := db.ModelExists(ctx, logTimestamp)
	require.NoError(t, err)
	require.True(t, exists)

	ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	mk.ExpectBegin()
	mk.ExpectExec(regexp.QuoteMeta("INSERT INTO log_timestamp_model(model_id,timestamp) VALUES ($1,$2)")).
		WithArgs("a", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mk.ExpectCommit()
	require.NoError(t, db.Insert(ctx, logTimestamp.New().MustSet("model_id", "a").MustSet("timestamp", ts)))

	mk.ExpectQuery(regexp.QuoteMeta("SHOW TABLES")).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}))
	_, err = db.GetColumns(ctx, "missing")
	require.True(t, errors.Is(err, dbm.ErrNotFound))

	require.NoError(t, mk.ExpectationsWereMet())
}

func TestCrateRejectsBadTableName(t *testing.T) {
	db, mk := newMockDatabase(t, dialect.CrateDB)

	mk.ExpectQuery(regexp.QuoteMeta("SHOW TABLES")).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("a;b"))
	_, err := db.GetColumns(context.Background(), "a;b")
	require.True(t, errors.Is(err, dbm.ErrInvalidArgument))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestMySQL(t *testing.T) {
	db, mk := newMockDatabase(t, dialect.MySQL)
	ctx := context.Background()

	mk.ExpectQuery(regexp.QuoteMeta(mysqlTables)).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("simple_model"))
	mk.ExpectQuery(regexp.QuoteMeta(mysqlColumns)).
		WithArgs("simple_model").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE"}).
			AddRow("model_id", "varchar(255)", "NO").
			AddRow("extra_column", "int", "YES"))
	mk.ExpectQuery(regexp.QuoteMeta(mysqlPrimaryKeys)).
		WithArgs("simple_model").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("model_id"))
	_, err := db.ModelExists(ctx, simpleModel)
	require.True(t, errors.Is(err, dbm.ErrSchemaMismatch))

	m := simpleModel.New().MustSet("model_id", "a").MustSet("float_column", 1.5)
	mk.ExpectBegin()
	mk.ExpectExec(regexp.QuoteMeta("UPDATE simple_model SET float_column=?,integer_column=? WHERE model_id IN (?)")).
		WithArgs(1.5, nil, "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mk.ExpectCommit()
	n, err := db.Update(ctx, m)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// 没有过滤条件的删除不会执行
	n, err = db.Delete(ctx, simpleModel, false, query.Filters{})
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	mk.ExpectBegin()
	mk.ExpectExec(regexp.QuoteMeta("DELETE FROM simple_model WHERE model_id IN (?)")).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mk.ExpectCommit()
	n, err = db.Delete(ctx, simpleModel, false, query.Filters{"model_id": "a"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	mk.ExpectQuery(regexp.QuoteMeta(mysqlTables)).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("flags"))
	mk.ExpectQuery(regexp.QuoteMeta(mysqlColumns)).
		WithArgs("flags").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE"}).
			AddRow("id", "bigint", "NO").
			AddRow("enabled", "tinyint(1)", "YES").
			AddRow("name", "varchar(32)", "YES"))
	mk.ExpectQuery(regexp.QuoteMeta(mysqlPrimaryKeys)).
		WithArgs("flags").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
	meta, err := db.GetModelMeta(ctx, "flags")
	require.NoError(t, err)
	require.Equal(t, []string{"id"}, meta.PrimaryKeys())
	typ, _ := meta.FieldType("enabled")
	require.Equal(t, dbtype.KindBoolean, typ.Kind())
	typ, _ = meta.FieldType("name")
	require.Equal(t, dbtype.KindCharN, typ.Kind())
	require.Equal(t, 32, typ.Length())

	require.NoError(t, mk.ExpectationsWereMet())
}
