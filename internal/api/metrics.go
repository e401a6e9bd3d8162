package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 伴随服务的 Prometheus 指标
// 使用独立的 Registry，测试中可以创建多个实例
type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	lessonCompletion *prometheus.CounterVec
	observers        prometheus.GaugeFunc
}

// NewMetrics 创建并注册指标
// 参数:
//
//	observerCount: 当前进度观察者数量，为 nil 时不注册该指标
func NewMetrics(observerCount func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devschool_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devschool_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		lessonCompletion: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devschool_lesson_completions_total",
				Help: "Lesson completion attempts by outcome",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.lessonCompletion,
		collectors.NewGoCollector(),
	)
	if observerCount != nil {
		m.observers = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "devschool_progress_observers",
				Help: "Number of connected progress observers",
			},
			func() float64 { return float64(observerCount()) },
		)
		m.registry.MustRegister(m.observers)
	}
	return m
}

// Middleware 记录请求数量和耗时
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// ObserveCompletion 记录一次课时完成尝试: completed, gated 或 failed
func (m *Metrics) ObserveCompletion(outcome string) {
	m.lessonCompletion.WithLabelValues(outcome).Inc()
}
