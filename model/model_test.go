package model

import (
	"testing"
	"time"

	"github.com/hatlonely/dbm"
	"github.com/hatlonely/dbm/dbtype"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func simpleSchema() *Schema {
	return MustNewSchema("simple_model", []string{"model_id"},
		F("model_id", dbtype.NewString()),
		F("integer_column", dbtype.NewInteger()),
		F("float_column", dbtype.NewFloat()),
	)
}

func TestNewSchema(t *testing.T) {
	Convey("测试 NewSchema", t, func() {
		Convey("字段按字典序排列", func() {
			s := simpleSchema()
			So(s.Table(), ShouldEqual, "simple_model")
			So(s.Fields(), ShouldResemble, []string{"float_column", "integer_column", "model_id"})
			So(s.PrimaryKeys(), ShouldResemble, []string{"model_id"})
			So(s.NonKeyFields(), ShouldResemble, []string{"float_column", "integer_column"})
			So(s.IsDynamic(), ShouldBeFalse)
			So(s.HasField("model_id"), ShouldBeTrue)
			So(s.HasField("other"), ShouldBeFalse)
		})

		Convey("主键不是字段", func() {
			_, err := NewSchema("t", []string{"id"}, F("name", dbtype.NewString()))
			So(errors.Is(err, dbm.ErrConfiguration), ShouldBeTrue)
		})

		Convey("重复字段", func() {
			_, err := NewSchema("t", nil, F("a", dbtype.NewString()), F("a", dbtype.NewInteger()))
			So(errors.Is(err, dbm.ErrConfiguration), ShouldBeTrue)
		})

		Convey("空表名", func() {
			_, err := NewSchema("", nil)
			So(errors.Is(err, dbm.ErrConfiguration), ShouldBeTrue)
		})

		Convey("返回的切片是拷贝", func() {
			s := simpleSchema()
			fields := s.Fields()
			fields[0] = "x"
			So(s.Fields()[0], ShouldEqual, "float_column")
		})

		Convey("继承父结构", func() {
			child, err := simpleSchema().Extend("simple_child_model", F("other_column", dbtype.NewInteger()))
			So(err, ShouldBeNil)
			So(child.Table(), ShouldEqual, "simple_child_model")
			So(child.Fields(), ShouldResemble, []string{"float_column", "integer_column", "model_id", "other_column"})
			So(child.PrimaryKeys(), ShouldResemble, []string{"model_id"})
		})

		Convey("动态结构", func() {
			s, err := NewDynamicSchema("t", nil, F("a", dbtype.NewString()))
			So(err, ShouldBeNil)
			So(s.IsDynamic(), ShouldBeTrue)
		})
	})
}

func TestModelSetGet(t *testing.T) {
	Convey("测试记录读写", t, func() {
		s := simpleSchema()
		m := s.New()

		Convey("未设置的字段不存在", func() {
			_, ok := m.Get("model_id")
			So(ok, ShouldBeFalse)
			So(m.Value("model_id"), ShouldBeNil)
		})

		Convey("写入后按类型规范化", func() {
			So(m.Set("integer_column", "12"), ShouldBeNil)
			So(m.Set("float_column", 3), ShouldBeNil)
			i, ok := m.GetInt64("integer_column")
			So(ok, ShouldBeTrue)
			So(i, ShouldEqual, 12)
			f, ok := m.GetFloat64("float_column")
			So(ok, ShouldBeTrue)
			So(f, ShouldEqual, 3.0)
		})

		Convey("写入空值", func() {
			So(m.Set("integer_column", nil), ShouldBeNil)
			v, ok := m.Get("integer_column")
			So(ok, ShouldBeTrue)
			So(v, ShouldBeNil)
		})

		Convey("未知字段", func() {
			err := m.Set("unknown", 1)
			So(errors.Is(err, dbm.ErrFieldNotFound), ShouldBeTrue)
			So(errors.Is(m.Unset("unknown"), dbm.ErrFieldNotFound), ShouldBeTrue)
		})

		Convey("类型不匹配", func() {
			err := m.Set("integer_column", "abc")
			So(errors.Is(err, dbm.ErrTypeMismatch), ShouldBeTrue)
			So(m.IsSet("integer_column"), ShouldBeFalse)
		})

		Convey("非空字段写入空值", func() {
			nn := MustNewSchema("non_nullable_model", []string{"model_id"}, F("model_id", dbtype.NewString(dbtype.NotNull())))
			err := nn.New().Set("model_id", nil)
			So(errors.Is(err, dbm.ErrNotNullViolation), ShouldBeTrue)
		})

		Convey("定长字符串截断", func() {
			cs := MustNewSchema("charn_model", nil, F("model_id", dbtype.NewCharN(10)))
			cm := cs.New().MustSet("model_id", "abcdefghijklmnop")
			v, _ := cm.GetString("model_id")
			So(v, ShouldEqual, "abcdefghij")
		})

		Convey("清除字段", func() {
			m.MustSet("model_id", "a")
			So(m.Unset("model_id"), ShouldBeNil)
			So(m.IsSet("model_id"), ShouldBeFalse)
		})

		Convey("NewModel", func() {
			m, err := s.NewModel(map[string]any{"model_id": "a", "integer_column": 1})
			So(err, ShouldBeNil)
			So(m.Values(), ShouldResemble, map[string]any{"model_id": "a", "integer_column": int64(1)})

			_, err = s.NewModel(map[string]any{"nope": 1})
			So(errors.Is(err, dbm.ErrFieldNotFound), ShouldBeTrue)
		})
	})
}

func TestModelEqual(t *testing.T) {
	Convey("测试记录比较", t, func() {
		s := MustNewSchema("log_timestamp_model", []string{"model_id"},
			F("model_id", dbtype.NewString()),
			F("timestamp", dbtype.NewDateTime()),
		)
		ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
		a := s.New().MustSet("model_id", "a").MustSet("timestamp", ts)
		b := s.New().MustSet("model_id", "a").MustSet("timestamp", ts.In(time.FixedZone("x", 3600)))
		So(a.Equal(b), ShouldBeTrue)

		b.MustSet("model_id", "b")
		So(a.Equal(b), ShouldBeFalse)

		So(a.Equal(s.New().MustSet("model_id", "a")), ShouldBeFalse)
		So(s.New().MustSet("model_id", "a").MustSet("timestamp", nil).Equal(s.New().MustSet("model_id", "a")), ShouldBeTrue)
		So(a.String(), ShouldStartWith, "log_timestamp_model{model_id: a, timestamp: ")
	})
}
