// Package dbm 将数据库表描述为带类型的记录结构，并把增删改查翻译为各方言的 SQL
package dbm

import (
	"github.com/pkg/errors"
)

var (
	// ErrConfiguration 模型定义错误，例如主键不是字段
	ErrConfiguration = errors.New("configuration error")
	// ErrFieldNotFound 访问或过滤了模型中不存在的字段
	ErrFieldNotFound = errors.New("field not found")
	// ErrTypeMismatch 值无法转换为字段声明的类型
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrNotNullViolation 向非空字段写入空值
	ErrNotNullViolation = errors.New("not null violation")
	// ErrSchemaMismatch 表已存在，但列集合与模型字段不一致
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrNotFound 表不存在
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedType 方言没有该类型的映射
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrInvalidArgument 参数不是预期的记录类型
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoPrimaryKey 模型没有主键，无法生成 UPDATE
	ErrNoPrimaryKey = errors.New("no primary key")
)

// IsUserError 判断是否为调用方输入引起的错误
func IsUserError(err error) bool {
	for _, e := range []error{ErrFieldNotFound, ErrTypeMismatch, ErrNotNullViolation, ErrInvalidArgument} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
