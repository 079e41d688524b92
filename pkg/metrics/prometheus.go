package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics глобальный контейнер метрик
type Metrics struct {
	// gRPC метрики
	GRPCRequestsTotal    *prometheus.CounterVec
	GRPCRequestDuration  *prometheus.HistogramVec
	GRPCRequestsInFlight prometheus.Gauge

	// Бизнес-метрики
	FramesDecodedTotal    *prometheus.CounterVec
	FrameDecodeDuration   *prometheus.HistogramVec
	PositionsProcessed    *prometheus.CounterVec
	PipelineLag           *prometheus.HistogramVec
	EventsEmittedTotal    *prometheus.CounterVec
	CommandsDispatched    *prometheus.CounterVec
	CommandQueueDepth     *prometheus.GaugeVec
	CommandRetries        *prometheus.CounterVec
	HubSessionsActive     prometheus.Gauge
	HubMessagesPublished  *prometheus.CounterVec
	HubSessionsDropped    *prometheus.CounterVec

	// Системные метрики
	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge

	// Информация о сервисе
	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics инициализирует метрики
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		// gRPC метрики
		GRPCRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "grpc_requests_total",
				Help:      "Total number of gRPC requests",
			},
			[]string{"method", "status"},
		),

		GRPCRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "grpc_request_duration_seconds",
				Help:      "Duration of gRPC requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),

		GRPCRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "grpc_requests_in_flight",
				Help:      "Current number of gRPC requests being processed",
			},
		),

		// Бизнес-метрики
		FramesDecodedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "frames_decoded_total",
				Help:      "Total number of protocol frames decoded, by protocol and outcome",
			},
			[]string{"protocol", "status"},
		),

		FrameDecodeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "frame_decode_duration_seconds",
				Help:      "Duration of protocol frame decoding",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"protocol"},
		),

		PositionsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "positions_processed_total",
				Help:      "Total number of positions processed by the ingestion pipeline",
			},
			[]string{"partition", "outcome"},
		),

		PipelineLag: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "pipeline_lag_seconds",
				Help:      "Delay between device fix time and pipeline processing",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"partition"},
		),

		EventsEmittedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_emitted_total",
				Help:      "Total number of derived events emitted, by event type",
			},
			[]string{"type"},
		),

		CommandsDispatched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "commands_dispatched_total",
				Help:      "Total number of commands dispatched to devices, by result",
			},
			[]string{"type", "status"},
		),

		CommandQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "command_queue_depth",
				Help:      "Current depth of the durable command queue, by priority",
			},
			[]string{"priority"},
		),

		CommandRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "command_retries_total",
				Help:      "Total number of command retry attempts",
			},
			[]string{"type"},
		),

		HubSessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "hub_sessions_active",
				Help:      "Current number of active subscription hub sessions",
			},
		),

		HubMessagesPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "hub_messages_published_total",
				Help:      "Total number of messages published to hub sessions, by topic kind",
			},
			[]string{"topic"},
		),

		HubSessionsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "hub_sessions_dropped_total",
				Help:      "Total number of hub sessions dropped for buffer overflow",
			},
			[]string{"topic"},
		),

		// Системные метрики
		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get возвращает глобальные метрики
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("fleettrack", "")
	}
	return defaultMetrics
}

// RecordGRPCRequest записывает метрики gRPC запроса
func (m *Metrics) RecordGRPCRequest(method string, status string, duration time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordFrameDecoded записывает метрики декодирования кадра протокола
func (m *Metrics) RecordFrameDecoded(protocol string, success bool, duration time.Duration) {
	status := "ok"
	if !success {
		status = "error"
	}
	m.FramesDecodedTotal.WithLabelValues(protocol, status).Inc()
	m.FrameDecodeDuration.WithLabelValues(protocol).Observe(duration.Seconds())
}

// RecordPositionProcessed записывает обработку позиции воркером партиции
func (m *Metrics) RecordPositionProcessed(partition, outcome string, lag time.Duration) {
	m.PositionsProcessed.WithLabelValues(partition, outcome).Inc()
	m.PipelineLag.WithLabelValues(partition).Observe(lag.Seconds())
}

// RecordEventEmitted записывает выпуск события заданного типа
func (m *Metrics) RecordEventEmitted(eventType string) {
	m.EventsEmittedTotal.WithLabelValues(eventType).Inc()
}

// RecordCommandDispatched записывает результат отправки команды устройству
func (m *Metrics) RecordCommandDispatched(commandType, status string) {
	m.CommandsDispatched.WithLabelValues(commandType, status).Inc()
}

// RecordCommandRetry записывает повторную попытку отправки команды
func (m *Metrics) RecordCommandRetry(commandType string) {
	m.CommandRetries.WithLabelValues(commandType).Inc()
}

// SetCommandQueueDepth устанавливает текущую глубину очереди команд
func (m *Metrics) SetCommandQueueDepth(priority string, depth int) {
	m.CommandQueueDepth.WithLabelValues(priority).Set(float64(depth))
}

// RecordHubPublish записывает публикацию сообщения в хаб подписок
func (m *Metrics) RecordHubPublish(topic string) {
	m.HubMessagesPublished.WithLabelValues(topic).Inc()
}

// RecordHubSessionDropped записывает отключение сессии из-за переполнения буфера
func (m *Metrics) RecordHubSessionDropped(topic string) {
	m.HubSessionsDropped.WithLabelValues(topic).Inc()
}

// SetServiceInfo устанавливает информацию о сервисе
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler возвращает HTTP handler для /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer запускает HTTP сервер для метрик
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		// Игнорируем ошибку записи - response уже отправлен
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, ошибка записи не критична
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
