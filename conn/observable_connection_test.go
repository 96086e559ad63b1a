package conn

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hatlonely/dbm/log/logger"
	"github.com/hatlonely/dbm/log/writer"
	"github.com/hatlonely/dbm/ref"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func fileLoggerOptions(path string) *ref.TypeOptions {
	return &ref.TypeOptions{
		Namespace: "github.com/hatlonely/dbm/log/logger",
		Type:      "SLog",
		Options: &logger.SLogOptions{
			Level:  "debug",
			Format: "json",
			Output: &ref.TypeOptions{
				Namespace: "github.com/hatlonely/dbm/log/writer",
				Type:      "FileWriter",
				Options:   &writer.FileWriterOptions{Path: path},
			},
		},
	}
}

func TestObservableConnection(t *testing.T) {
	Convey("测试可观测连接", t, func() {
		db, mk, err := sqlmock.New()
		So(err, ShouldBeNil)
		defer db.Close()

		inner, err := NewSQLConnection(db)
		So(err, ShouldBeNil)

		logPath := filepath.Join(t.TempDir(), "conn.log")
		c, err := NewObservableConnection(inner, &ObservableConnectionOptions{
			Logger:        fileLoggerOptions(logPath),
			EnableMetrics: true,
			EnableLogging: true,
			EnableTracing: true,
			Name:          "dbm_test",
		})
		So(err, ShouldBeNil)

		ctx := context.Background()
		mk.ExpectQuery(regexp.QuoteMeta("SELECT a FROM t")).
			WillReturnRows(sqlmock.NewRows([]string{"a"}).AddRow(int64(1)).AddRow(int64(2)))
		mk.ExpectBegin()
		mk.ExpectExec(regexp.QuoteMeta("DELETE FROM t")).WillReturnResult(sqlmock.NewResult(0, 2))
		mk.ExpectCommit()
		mk.ExpectQuery(regexp.QuoteMeta("SELECT b FROM t")).WillReturnError(os.ErrClosed)

		cur, err := c.Execute(ctx, "SELECT a FROM t")
		So(err, ShouldBeNil)
		So(cur.FetchAll(), ShouldHaveLength, 2)
		So(cur.Columns(), ShouldResemble, []string{"a"})

		cur, err = c.Execute(ctx, "DELETE FROM t")
		So(err, ShouldBeNil)
		So(cur.RowCount(), ShouldEqual, 2)
		So(c.Commit(ctx), ShouldBeNil)

		_, err = c.Execute(ctx, "SELECT b FROM t")
		So(err, ShouldNotBeNil)
		So(c.Close(), ShouldBeNil)
		So(mk.ExpectationsWereMet(), ShouldBeNil)

		metrics := NewObservableMetrics("dbm_test")
		So(testutil.ToFloat64(metrics.statementCounter.WithLabelValues("execute", "select", "success")), ShouldBeGreaterThanOrEqualTo, 1)
		So(testutil.ToFloat64(metrics.statementCounter.WithLabelValues("execute", "select", "error")), ShouldBeGreaterThanOrEqualTo, 1)
		So(testutil.ToFloat64(metrics.statementCounter.WithLabelValues("commit", "commit", "success")), ShouldBeGreaterThanOrEqualTo, 1)

		content, err := os.ReadFile(logPath)
		So(err, ShouldBeNil)
		So(string(content), ShouldContainSubstring, `"query":"DELETE FROM t"`)
		So(string(content), ShouldContainSubstring, `"msg":"statement failed"`)
	})
}

func TestObservableConnectionWithOptions(t *testing.T) {
	Convey("测试通过配置创建可观测连接", t, func() {
		c, err := NewConnectionWithOptions(&ref.TypeOptions{
			Namespace: "github.com/hatlonely/dbm/conn",
			Type:      "ObservableConnection",
			Options: &ObservableConnectionOptions{
				Connection: &ref.TypeOptions{
					Namespace: "github.com/hatlonely/dbm/conn",
					Type:      "SQLConnection",
					Options:   &SQLOptions{Driver: "sqlite3"},
				},
				EnableMetrics: true,
			},
		})
		So(err, ShouldBeNil)
		defer c.Close()

		ctx := context.Background()
		_, err = c.Execute(ctx, "CREATE TABLE t (a INTEGER)")
		So(err, ShouldBeNil)
		So(c.Commit(ctx), ShouldBeNil)
		cur, err := c.Cursor().Execute(ctx, "SELECT a FROM t")
		So(err, ShouldBeNil)
		So(cur.RowCount(), ShouldEqual, 0)

		_, err = NewObservableConnectionWithOptions(&ObservableConnectionOptions{})
		So(err, ShouldNotBeNil)
	})
}
