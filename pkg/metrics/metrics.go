// Package metrics 提供 Prometheus helper，包含 HTTP 与业务 counter/gauge/histogram 模板
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/tradeexecution/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal prometheus.Counter
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 订单业务指标
	OrdersPlacedTotal   *prometheus.CounterVec
	OrdersRejectedTotal prometheus.Counter
	TradesExecutedTotal prometheus.Counter
	OrdersPending       prometheus.Gauge

	// 滑动确认业务指标
	SlidePreparedTotal       prometheus.Counter
	SlideExecutedTotal       prometheus.Counter
	SlideRejectedTotal       *prometheus.CounterVec
	SlideSessionsActive      prometheus.Gauge
	SlideGestureScore        prometheus.Histogram
	SlideExecutionDuration   prometheus.Histogram
	SlideSecurityViolations  prometheus.Counter
	SlideSessionsSweptTotal  prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		OrdersPlacedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "orders_placed_total",
			Help:      "Total orders placed, by order type",
		}, []string{"order_type"}),
		OrdersRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "orders_rejected_total",
			Help:      "Total orders rejected by validation",
		}),
		TradesExecutedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "trades_executed_total",
			Help:      "Total trades executed",
		}),
		OrdersPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "orders_pending",
			Help:      "Number of orders currently pending",
		}),

		SlidePreparedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "slide_prepared_total",
			Help:      "Total slide sessions prepared",
		}),
		SlideExecutedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "slide_executed_total",
			Help:      "Total slide sessions executed successfully",
		}),
		SlideRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "slide_rejected_total",
			Help:      "Total slide executions rejected, by reason class",
		}, []string{"reason"}),
		SlideSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "slide_sessions_active",
			Help:      "Number of pending slide sessions",
		}),
		SlideGestureScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "slide_gesture_score",
			Help:      "Gesture validation score distribution",
			Buckets:   []float64{0, 20, 40, 60, 80, 90, 100},
		}),
		SlideExecutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "slide_execution_duration_seconds",
			Help:      "End to end slide execution duration",
			Buckets:   prometheus.DefBuckets,
		}),
		SlideSecurityViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "slide_security_violations_total",
			Help:      "Total slide security violations (ownership, session, replay)",
		}),
		SlideSessionsSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "slide_sessions_swept_total",
			Help:      "Total expired slide sessions removed by the sweeper",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OrdersPlacedTotal,
		m.OrdersRejectedTotal,
		m.TradesExecutedTotal,
		m.OrdersPending,
		m.SlidePreparedTotal,
		m.SlideExecutedTotal,
		m.SlideRejectedTotal,
		m.SlideSessionsActive,
		m.SlideGestureScore,
		m.SlideExecutionDuration,
		m.SlideSecurityViolations,
		m.SlideSessionsSweptTotal,
	}

	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}

// StartHTTPServer 启动指标 HTTP 服务器
func StartHTTPServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	go func() {
		logger.Info(context.Background(), "Metrics server listening", "addr", addr, "path", path)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "Metrics server error", "error", err)
		}
	}()
	return nil
}
