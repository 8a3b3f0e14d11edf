package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Sekret API build information.",
		},
		[]string{"version", "commit"},
	)

	readyOnce sync.Once

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})
)

// InitBuildInfo registers the build_info metric once and sets its labels.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// SetReady records the latest readiness probe outcome.
func SetReady(ready bool) {
	readyOnce.Do(func() {
		prometheus.MustRegister(readyGauge)
	})
	if ready {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}
