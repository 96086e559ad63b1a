package dbtype

import (
	"fmt"
)

// Kind 列类型的种类
type Kind int

const (
	KindInteger Kind = iota + 1
	KindFloat
	KindString
	KindCharN
	KindBoolean
	KindDate
	KindDateTime
)

var kindNames = map[Kind]string{
	KindInteger:  "Integer",
	KindFloat:    "Float",
	KindString:   "String",
	KindCharN:    "CharN",
	KindBoolean:  "Boolean",
	KindDate:     "Date",
	KindDateTime: "DateTime",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// DBType 列类型描述
//
// Coerce 把任意输入转换为该类型的规范 Go 值：
//   - Integer -> int64
//   - Float -> float64
//   - String / CharN -> string
//   - Boolean -> bool
//   - Date / DateTime -> time.Time
//
// 空值用 nil 表示，只有可空的列才接受 nil
type DBType interface {
	Kind() Kind
	IsNullable() bool
	IsUnique() bool
	// Length 只对 CharN 有意义，其余类型返回 0
	Length() int
	Coerce(raw any) (any, bool)
	// String 标准 SQL 关键字，例如 INTEGER、VARCHAR(10)
	String() string
}

// Options 列类型的公共属性
type Options struct {
	Nullable bool
	Unique   bool
}

type Option func(*Options)

// NotNull 非空列
func NotNull() Option {
	return func(o *Options) { o.Nullable = false }
}

func Nullable(nullable bool) Option {
	return func(o *Options) { o.Nullable = nullable }
}

func Unique() Option {
	return func(o *Options) { o.Unique = true }
}

func buildOptions(opts []Option) Options {
	o := Options{Nullable: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Constructor 由原生类型名构造列类型，length 只对 CharN 生效
type Constructor func(length int, opts ...Option) DBType

type dbType struct {
	kind     Kind
	nullable bool
	unique   bool
	length   int
}

func newType(kind Kind, length int, opts []Option) *dbType {
	o := buildOptions(opts)
	return &dbType{kind: kind, nullable: o.Nullable, unique: o.Unique, length: length}
}

func NewInteger(opts ...Option) DBType { return newType(KindInteger, 0, opts) }

func NewFloat(opts ...Option) DBType { return newType(KindFloat, 0, opts) }

func NewString(opts ...Option) DBType { return newType(KindString, 0, opts) }

// NewCharN 定长字符串，写入时截断到 n 个字符
func NewCharN(n int, opts ...Option) DBType {
	if n < 0 {
		n = 0
	}
	return newType(KindCharN, n, opts)
}

func NewBoolean(opts ...Option) DBType { return newType(KindBoolean, 0, opts) }

// NewDate 日期，统一规整为 UTC 零点
func NewDate(opts ...Option) DBType { return newType(KindDate, 0, opts) }

func NewDateTime(opts ...Option) DBType { return newType(KindDateTime, 0, opts) }

// ConstructorOf 返回某种类型的构造函数，供类型映射表使用
func ConstructorOf(kind Kind) Constructor {
	switch kind {
	case KindCharN:
		return func(length int, opts ...Option) DBType { return NewCharN(length, opts...) }
	case KindInteger, KindFloat, KindString, KindBoolean, KindDate, KindDateTime:
		return func(_ int, opts ...Option) DBType { return newType(kind, 0, opts) }
	}
	return nil
}

func (t *dbType) Kind() Kind       { return t.kind }
func (t *dbType) IsNullable() bool { return t.nullable }
func (t *dbType) IsUnique() bool   { return t.unique }
func (t *dbType) Length() int      { return t.length }

func (t *dbType) String() string {
	switch t.kind {
	case KindInteger:
		return "INTEGER"
	case KindFloat:
		return "FLOAT"
	case KindString:
		return "TEXT"
	case KindCharN:
		return fmt.Sprintf("VARCHAR(%d)", t.length)
	case KindBoolean:
		return "BOOLEAN"
	case KindDate:
		return "DATE"
	case KindDateTime:
		return "DATETIME"
	}
	return t.kind.String()
}

func (t *dbType) Coerce(raw any) (any, bool) {
	if isNil(raw) {
		return nil, t.nullable
	}

	switch t.kind {
	case KindInteger:
		return toInteger(raw)
	case KindFloat:
		return toFloat(raw)
	case KindString:
		s, ok := toString(raw)
		if !ok {
			return nil, false
		}
		return s, true
	case KindCharN:
		s, ok := toString(raw)
		if !ok {
			return nil, false
		}
		return truncate(s, t.length), true
	case KindBoolean:
		return toBoolean(raw)
	case KindDate:
		return toDate(raw)
	case KindDateTime:
		return toDateTime(raw)
	}
	return nil, false
}
