package metrics

import (
	"sync"

	"wastewatch/models"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "wastewatch_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	snapshotsTotal     *prometheus.CounterVec
	evaluationsTotal   *prometheus.CounterVec
	faultsTotal        *prometheus.CounterVec
	devicesByStatus    *prometheus.GaugeVec
	notificationsTotal *prometheus.CounterVec
	flushesTotal       *prometheus.CounterVec
	flushedEvents      prometheus.Counter
)

// Init registers the collectors with the default registry
func Init() {
	registerOnce.Do(func() {
		snapshotsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "snapshots_total",
				Help: "Sensor snapshots received by source",
			},
			[]string{"source"},
		)
		evaluationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "evaluations_total",
				Help: "Snapshot evaluations by severity",
			},
			[]string{"severity"},
		)
		faultsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "faults_total",
				Help: "Out of band readings by parameter and kind",
			},
			[]string{"parameter", "kind"},
		)
		devicesByStatus = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "devices",
				Help: "Tracked devices by derived status",
			},
			[]string{"status"},
		)
		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Alert notifications by channel and result",
			},
			[]string{"channel", "result"},
		)
		flushesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fault_event_flushes_total",
				Help: "Fault event batch flushes by result",
			},
			[]string{"result"},
		)
		flushedEvents = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "fault_events_written_total",
				Help: "Fault events written to the realtime store",
			},
		)

		prometheus.MustRegister(
			snapshotsTotal,
			evaluationsTotal,
			faultsTotal,
			devicesByStatus,
			notificationsTotal,
			flushesTotal,
			flushedEvents,
		)
	})
}

func ObserveSnapshot(source string) {
	if snapshotsTotal == nil {
		return
	}
	snapshotsTotal.WithLabelValues(source).Inc()
}

func ObserveEvaluation(eval models.Evaluation) {
	if evaluationsTotal == nil {
		return
	}
	evaluationsTotal.WithLabelValues(string(eval.Severity)).Inc()
	for _, fault := range eval.Faults {
		faultsTotal.WithLabelValues(string(fault.Parameter), string(fault.Kind)).Inc()
	}
}

func SetDeviceStatusCounts(counts map[models.DeviceStatus]int) {
	if devicesByStatus == nil {
		return
	}
	for status, n := range counts {
		devicesByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}

func ObserveNotification(channel string, err error) {
	if notificationsTotal == nil {
		return
	}
	notificationsTotal.WithLabelValues(channel, resultLabel(err)).Inc()
}

func ObserveFlush(batchSize int, err error) {
	if flushesTotal == nil {
		return
	}
	flushesTotal.WithLabelValues(resultLabel(err)).Inc()
	if err == nil {
		flushedEvents.Add(float64(batchSize))
	}
}

func resultLabel(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
