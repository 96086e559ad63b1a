package conn

import (
	"context"
	"fmt"
	"time"

	"github.com/hatlonely/dbm/log"
	"github.com/hatlonely/dbm/log/logger"
	"github.com/hatlonely/dbm/ref"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableConnectionOptions struct {
	// Connection 被包装的连接配置
	Connection *ref.TypeOptions `cfg:"connection" validate:"required"`

	// Logger 为空时使用默认日志器
	Logger *ref.TypeOptions `cfg:"logger"`

	EnableMetrics bool `cfg:"enableMetrics"`
	EnableLogging bool `cfg:"enableLogging"`
	EnableTracing bool `cfg:"enableTracing"`

	// Name 指标名前缀，日志和 span 的 component
	Name string `cfg:"name" def:"dbm"`
}

type ObservableMetrics struct {
	statementCounter  *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
	activeStatements  *prometheus.GaugeVec
	rowCount          *prometheus.HistogramVec
}

// register 同名指标已经注册过时复用已有的收集器
func register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func NewObservableMetrics(name string) *ObservableMetrics {
	return &ObservableMetrics{
		statementCounter: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_statements_total",
				Help: "Total number of executed statements",
			},
			[]string{"operation", "statement", "status"},
		)),
		statementDuration: register(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_statement_duration_seconds",
				Help:    "Duration of statements in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation", "statement"},
		)),
		activeStatements: register(prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_statements",
				Help: "Number of running statements",
			},
			[]string{"operation"},
		)),
		rowCount: register(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_statement_rows",
				Help:    "Rows returned or affected by statements",
				Buckets: []float64{0, 1, 10, 100, 1000, 10000},
			},
			[]string{"statement"},
		)),
	}
}

// ObservableConnection 为任意 Connection 添加指标、日志和追踪
type ObservableConnection struct {
	conn Connection

	logger        logger.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableMetrics bool
	enableLogging bool
	enableTracing bool
}

func NewObservableConnectionWithOptions(options *ObservableConnectionOptions) (*ObservableConnection, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	c, err := NewConnectionWithOptions(options.Connection)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create underlying connection")
	}
	obs, err := NewObservableConnection(c, options)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return obs, nil
}

// NewObservableConnection 包装已有的连接，忽略 options.Connection
func NewObservableConnection(c Connection, options *ObservableConnectionOptions) (*ObservableConnection, error) {
	if options == nil {
		options = &ObservableConnectionOptions{}
	}
	name := options.Name
	if name == "" {
		name = "dbm"
	}

	obs := &ObservableConnection{
		conn:          c,
		name:          name,
		enableMetrics: options.EnableMetrics,
		enableLogging: options.EnableLogging,
		enableTracing: options.EnableTracing,
	}
	if options.EnableLogging {
		l, err := log.NewLoggerWithOptions(options.Logger)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create logger")
		}
		obs.logger = l.WithGroup("observableConnection")
	}
	if options.EnableMetrics {
		obs.metrics = NewObservableMetrics(name)
	}
	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("conn.%s", name))
	}
	return obs, nil
}

// observe 统一的观测逻辑，fn 返回结果行数
func (obs *ObservableConnection) observe(ctx context.Context, operation string, query string, fn func(context.Context) (int64, error)) error {
	start := time.Now()
	statement := Statement(query)

	var span trace.Span
	if obs.enableTracing {
		ctx, span = obs.tracer.Start(ctx, fmt.Sprintf("conn.%s", operation),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
				attribute.String("db.statement", query),
			),
		)
		defer span.End()
	}

	if obs.enableMetrics {
		obs.metrics.activeStatements.WithLabelValues(operation).Inc()
		defer obs.metrics.activeStatements.WithLabelValues(operation).Dec()
	}

	rows, err := fn(ctx)
	duration := time.Since(start)

	if obs.enableTracing {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()), attribute.Int64("rows", rows))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.enableMetrics {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.statementCounter.WithLabelValues(operation, statement, status).Inc()
		obs.metrics.statementDuration.WithLabelValues(operation, statement).Observe(duration.Seconds())
		if err == nil && rows >= 0 && operation == "execute" {
			obs.metrics.rowCount.WithLabelValues(statement).Observe(float64(rows))
		}
	}

	if obs.enableLogging {
		if err != nil {
			obs.logger.ErrorContext(ctx, "statement failed",
				"component", obs.name,
				"operation", operation,
				"query", query,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.DebugContext(ctx, "statement completed",
				"component", obs.name,
				"operation", operation,
				"query", query,
				"rows", rows,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}
	return err
}

func (obs *ObservableConnection) Cursor() Cursor {
	return &observableCursor{Cursor: obs.conn.Cursor(), obs: obs}
}

func (obs *ObservableConnection) Execute(ctx context.Context, query string, args ...any) (Cursor, error) {
	return obs.Cursor().Execute(ctx, query, args...)
}

func (obs *ObservableConnection) Commit(ctx context.Context) error {
	return obs.observe(ctx, "commit", "commit", func(ctx context.Context) (int64, error) {
		return 0, obs.conn.Commit(ctx)
	})
}

func (obs *ObservableConnection) Close() error {
	return obs.observe(context.Background(), "close", "close", func(ctx context.Context) (int64, error) {
		return 0, obs.conn.Close()
	})
}

type observableCursor struct {
	Cursor
	obs *ObservableConnection
}

func (c *observableCursor) Execute(ctx context.Context, query string, args ...any) (Cursor, error) {
	err := c.obs.observe(ctx, "execute", query, func(ctx context.Context) (int64, error) {
		cur, err := c.Cursor.Execute(ctx, query, args...)
		if err != nil {
			return -1, err
		}
		return cur.RowCount(), nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
