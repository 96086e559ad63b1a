package dialect

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hatlonely/dbm"
	"github.com/hatlonely/dbm/dbtype"
	"github.com/pkg/errors"
)

// Marker 参数占位符风格
type Marker int

const (
	// MarkerQuestion 使用 ?，sqlite 和 mysql
	MarkerQuestion Marker = iota
	// MarkerDollar 使用 $1, $2...，postgres 协议
	MarkerDollar
)

// Dialect 方言描述，构造后只读
type Dialect struct {
	name        string
	driver      string
	marker      Marker
	sqlTypes    map[dbtype.Kind]string
	nativeTypes map[string]dbtype.Kind
}

// Options 方言的差异部分，会合并到标准方言之上
type Options struct {
	Name   string
	Driver string
	Marker Marker
	// SQLTypes 类型到建表关键字，CharN 的关键字中 %d 替换为长度
	SQLTypes map[dbtype.Kind]string
	// NativeTypes 数据库返回的类型名到类型，大小写不敏感
	NativeTypes map[string]dbtype.Kind
}

var standardSQLTypes = map[dbtype.Kind]string{
	dbtype.KindInteger: "INTEGER",
	dbtype.KindFloat:   "FLOAT",
	dbtype.KindString:  "TEXT",
	dbtype.KindCharN:   "VARCHAR(%d)",
	dbtype.KindBoolean: "BOOLEAN",
}

var standardNativeTypes = map[string]dbtype.Kind{
	"INTEGER": dbtype.KindInteger,
	"TEXT":    dbtype.KindString,
	"FLOAT":   dbtype.KindFloat,
	"BOOLEAN": dbtype.KindBoolean,
	"VARCHAR": dbtype.KindCharN,
}

// New 以标准方言为基础，叠加 options 中的类型表
func New(options Options) *Dialect {
	d := &Dialect{
		name:        options.Name,
		driver:      options.Driver,
		marker:      options.Marker,
		sqlTypes:    map[dbtype.Kind]string{},
		nativeTypes: map[string]dbtype.Kind{},
	}
	for k, v := range standardSQLTypes {
		d.sqlTypes[k] = v
	}
	for k, v := range options.SQLTypes {
		d.sqlTypes[k] = v
	}
	for k, v := range standardNativeTypes {
		d.nativeTypes[k] = v
	}
	for k, v := range options.NativeTypes {
		d.nativeTypes[normalize(k)] = v
	}
	return d
}

func (d *Dialect) Name() string {
	return d.name
}

// Driver database/sql 的驱动名
func (d *Dialect) Driver() string {
	return d.driver
}

func (d *Dialect) Marker() Marker {
	return d.marker
}

// Placeholder 第 n 个参数的占位符，n 从 1 开始
func (d *Dialect) Placeholder(n int) string {
	if d.marker == MarkerDollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// SQLType 建表语句中的列类型
func (d *Dialect) SQLType(typ dbtype.DBType) (string, error) {
	tpl, ok := d.sqlTypes[typ.Kind()]
	if !ok {
		return "", errors.Wrapf(dbm.ErrUnsupportedType, "%s has no mapping in dialect [%s]", typ.Kind(), d.name)
	}
	if typ.Kind() == dbtype.KindCharN && strings.Contains(tpl, "%d") {
		return fmt.Sprintf(tpl, typ.Length()), nil
	}
	return tpl, nil
}

// Supports 方言能否表示该类型
func (d *Dialect) Supports(kind dbtype.Kind) bool {
	_, ok := d.sqlTypes[kind]
	return ok
}

var lengthSuffix = regexp.MustCompile(`^(.*?)\s*\(\s*(\d+)\s*\)$`)

// GetType 把数据库返回的原生类型名映射为类型，例如 "character varying(10)"
// 先按完整名称查找，再去掉长度后缀查找
func (d *Dialect) GetType(native string, opts ...dbtype.Option) (dbtype.DBType, error) {
	name := normalize(native)
	if kind, ok := d.nativeTypes[name]; ok {
		return dbtype.ConstructorOf(kind)(0, opts...), nil
	}

	if m := lengthSuffix.FindStringSubmatch(name); m != nil {
		if kind, ok := d.nativeTypes[m[1]]; ok {
			length, _ := strconv.Atoi(m[2])
			if kind != dbtype.KindCharN {
				length = 0
			}
			return dbtype.ConstructorOf(kind)(length, opts...), nil
		}
	}

	return nil, errors.Wrapf(dbm.ErrUnsupportedType, "native type [%s] has no mapping in dialect [%s]", native, d.name)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
