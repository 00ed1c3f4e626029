// Package metrics exposes this server's Prometheus instrumentation,
// grounded on the teacher's own metrics.go (package-level CounterVec/
// GaugeVec/HistogramVec, registered in an init(), named after the thing
// they count rather than the package that counts it).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
)

func init() {
	prometheus.MustRegister(LookupsTotal)
	prometheus.MustRegister(LookupResultTotal)
	prometheus.MustRegister(CompletionsTotal)
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(ConnectionsAcceptedTotal)
	prometheus.MustRegister(ReloadsTotal)
	prometheus.MustRegister(IMECacheResultTotal)
	prometheus.MustRegister(RequestDuration)
}

var LookupsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "yaskkserv_lookups_total",
		Help: "Lookup requests ('1') received",
	},
)

var LookupResultTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "yaskkserv_lookup_result_total",
		Help: "Lookup requests by result",
	},
	[]string{"result"}, // hit | not_found
)

var CompletionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "yaskkserv_completions_total",
		Help: "Completion requests ('4'/'c') received",
	},
)

var ConnectionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "yaskkserv_connections_active",
		Help: "Connection slots currently not FREE",
	},
)

var ConnectionsAcceptedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "yaskkserv_connections_accepted_total",
		Help: "Connections accepted since startup",
	},
)

var ReloadsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "yaskkserv_reloads_total",
		Help: "Dictionary reload attempts by outcome",
	},
	[]string{"outcome"}, // reloaded | unchanged | failed
)

var IMECacheResultTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "yaskkserv_ime_cache_result_total",
		Help: "IME collaborator lookups by cache outcome",
	},
	[]string{"result"}, // hit | miss | disabled
)

var RequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "yaskkserv_request_duration_seconds",
		Help:    "Time spent producing a response, by command",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"command"},
)

// Serve starts the Prometheus exposition endpoint on listen and blocks
// until it fails; callers run it in its own goroutine. An empty listen
// address disables metrics entirely, matching --metrics-listen being
// optional (§6 of SPEC_FULL.md).
func Serve(listen string) {
	if listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	klog.Infof("metrics: listening on %s", listen)
	if err := http.ListenAndServe(listen, mux); err != nil {
		klog.Errorf("metrics: server on %s exited: %v", listen, err)
	}
}
