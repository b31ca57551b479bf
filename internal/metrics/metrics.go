package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Run results used as the label of kernelbench_runs_total.
const (
	ResultPass  = "pass"
	ResultFail  = "fail"
	ResultError = "error"
)

// Recorder holds the collectors of one benchmark process. A nil *Recorder
// is valid and records nothing.
type Recorder struct {
	KernelLap            prometheus.Histogram
	TransferLap          prometheus.Histogram
	Throughput           prometheus.Gauge
	KernelBandwidth      prometheus.Gauge
	TransferBandwidth    prometheus.Gauge
	VerificationFailures prometheus.Counter
	Runs                 *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		KernelLap: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kernelbench_kernel_lap_seconds",
			Help:    "Duration of one kernel launch from enqueue to completion",
			Buckets: prometheus.ExponentialBuckets(1e-5, 2, 20), // 10µs to ~5s
		}),
		TransferLap: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kernelbench_transfer_lap_seconds",
			Help:    "Duration of one device to host read of the result buffer",
			Buckets: prometheus.ExponentialBuckets(1e-5, 2, 20),
		}),
		Throughput: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kernelbench_throughput_gflops",
			Help: "Element operations per second of the last run, in billions",
		}),
		KernelBandwidth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kernelbench_kernel_bandwidth_gib_per_second",
			Help: "Device memory bandwidth of the compute phase of the last run",
		}),
		TransferBandwidth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kernelbench_transfer_bandwidth_gib_per_second",
			Help: "Device to host bandwidth of the last run",
		}),
		VerificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "kernelbench_verification_failures_total",
			Help: "Runs whose device result differed from the host reference",
		}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kernelbench_runs_total",
			Help: "Benchmark runs by result",
		}, []string{"result"}),
	}
}

func (r *Recorder) ObserveKernelLap(_ int, d time.Duration) {
	if r != nil {
		r.KernelLap.Observe(d.Seconds())
	}
}

func (r *Recorder) ObserveTransferLap(_ int, d time.Duration) {
	if r != nil {
		r.TransferLap.Observe(d.Seconds())
	}
}

// SetFigures publishes the derived figures of a finished run.
func (r *Recorder) SetFigures(gflops, kernelGiB, transferGiB float64) {
	if r == nil {
		return
	}
	r.Throughput.Set(gflops)
	r.KernelBandwidth.Set(kernelGiB)
	r.TransferBandwidth.Set(transferGiB)
}

// RunFinished counts a run under result.
func (r *Recorder) RunFinished(result string) {
	if r == nil {
		return
	}
	if result == ResultFail {
		r.VerificationFailures.Inc()
	}
	r.Runs.WithLabelValues(result).Inc()
}

// Dump writes every metric family of g in the text exposition format.
func Dump(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
