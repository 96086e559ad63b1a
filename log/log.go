package log

import (
	"sync/atomic"

	"github.com/hatlonely/dbm/log/logger"
	"github.com/hatlonely/dbm/ref"
	"github.com/pkg/errors"
)

// atomic.Value 要求每次存入相同的具体类型
type holder struct {
	logger logger.Logger
}

var defaultLogger atomic.Value

func init() {
	ref.MustRegisterT[*logger.SLog](logger.NewSLogWithOptions)

	// 默认向终端输出 text 格式日志
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{Level: "info", Format: "text"})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger.Store(holder{logger: l})
}

func Default() logger.Logger {
	return defaultLogger.Load().(holder).logger
}

func SetDefault(l logger.Logger) {
	if l != nil {
		defaultLogger.Store(holder{logger: l})
	}
}

// NewLoggerWithOptions 通过 ref 创建日志器，options 为 nil 时返回默认日志器
func NewLoggerWithOptions(options *ref.TypeOptions) (logger.Logger, error) {
	if options == nil {
		return Default(), nil
	}
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create logger")
	}
	l, ok := obj.(logger.Logger)
	if !ok {
		return nil, errors.Errorf("%T does not implement Logger", obj)
	}
	return l, nil
}
