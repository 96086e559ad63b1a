package dialect

import (
	"strings"

	"github.com/hatlonely/dbm/dbtype"
	"github.com/pkg/errors"
)

var (
	// Standard 只包含各数据库公共的类型，没有日期类型
	Standard = New(Options{
		Name:   "standard",
		Marker: MarkerQuestion,
	})

	SQLite = New(Options{
		Name:   "sqlite",
		Driver: "sqlite3",
		Marker: MarkerQuestion,
		SQLTypes: map[dbtype.Kind]string{
			dbtype.KindDate:     "DATE",
			dbtype.KindDateTime: "DATETIME",
		},
		NativeTypes: map[string]dbtype.Kind{
			"INT":       dbtype.KindInteger,
			"BIGINT":    dbtype.KindInteger,
			"REAL":      dbtype.KindFloat,
			"DOUBLE":    dbtype.KindFloat,
			"CHAR":      dbtype.KindCharN,
			"DATE":      dbtype.KindDate,
			"DATETIME":  dbtype.KindDateTime,
			"TIMESTAMP": dbtype.KindDateTime,
		},
	})

	Postgres = New(Options{
		Name:   "postgres",
		Driver: "postgres",
		Marker: MarkerDollar,
		SQLTypes: map[dbtype.Kind]string{
			dbtype.KindDate:     "DATE",
			dbtype.KindDateTime: "TIMESTAMP",
		},
		NativeTypes: map[string]dbtype.Kind{
			"smallint":                    dbtype.KindInteger,
			"bigint":                      dbtype.KindInteger,
			"real":                        dbtype.KindFloat,
			"double precision":            dbtype.KindFloat,
			"numeric":                     dbtype.KindFloat,
			"character varying":           dbtype.KindCharN,
			"character":                   dbtype.KindCharN,
			"date":                        dbtype.KindDate,
			"timestamp":                   dbtype.KindDateTime,
			"timestamp without time zone": dbtype.KindDateTime,
			"timestamp with time zone":    dbtype.KindDateTime,
		},
	})

	// CrateDB 通过 postgres 协议访问，没有独立的 DATE 列类型，日期也存为 TIMESTAMP
	CrateDB = New(Options{
		Name:   "crate",
		Driver: "postgres",
		Marker: MarkerDollar,
		SQLTypes: map[dbtype.Kind]string{
			dbtype.KindDate:     "TIMESTAMP",
			dbtype.KindDateTime: "TIMESTAMP",
		},
		NativeTypes: map[string]dbtype.Kind{
			"smallint":                    dbtype.KindInteger,
			"bigint":                      dbtype.KindInteger,
			"real":                        dbtype.KindFloat,
			"double precision":            dbtype.KindFloat,
			"character varying":           dbtype.KindCharN,
			"timestamp":                   dbtype.KindDateTime,
			"timestamp with time zone":    dbtype.KindDateTime,
			"timestamp without time zone": dbtype.KindDateTime,
		},
	})

	MySQL = New(Options{
		Name:   "mysql",
		Driver: "mysql",
		Marker: MarkerQuestion,
		SQLTypes: map[dbtype.Kind]string{
			dbtype.KindString:   "VARCHAR(255)",
			dbtype.KindFloat:    "DOUBLE",
			dbtype.KindDate:     "DATE",
			dbtype.KindDateTime: "DATETIME",
		},
		NativeTypes: map[string]dbtype.Kind{
			"int":          dbtype.KindInteger,
			"bigint":       dbtype.KindInteger,
			"smallint":     dbtype.KindInteger,
			"tinyint":      dbtype.KindInteger,
			"tinyint(1)":   dbtype.KindBoolean,
			"double":       dbtype.KindFloat,
			"varchar(255)": dbtype.KindString,
			"char":         dbtype.KindCharN,
			"date":         dbtype.KindDate,
			"datetime":     dbtype.KindDateTime,
			"timestamp":    dbtype.KindDateTime,
		},
	})
)

var dialects = map[string]*Dialect{
	"standard":   Standard,
	"sqlite":     SQLite,
	"sqlite3":    SQLite,
	"postgres":   Postgres,
	"postgresql": Postgres,
	"crate":      CrateDB,
	"cratedb":    CrateDB,
	"mysql":      MySQL,
}

// Get 按名称获取预定义方言
func Get(name string) (*Dialect, error) {
	if d, ok := dialects[strings.ToLower(name)]; ok {
		return d, nil
	}
	return nil, errors.Errorf("unknown dialect [%s]", name)
}
