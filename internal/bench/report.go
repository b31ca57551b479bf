package bench

import (
	"fmt"
	"io"

	"github.com/fxnlabs/kernelbench/internal/config"
	"github.com/fxnlabs/kernelbench/internal/dispatch"
	"github.com/fxnlabs/kernelbench/internal/gpu"
	"github.com/fxnlabs/kernelbench/internal/stats"
	"github.com/fxnlabs/kernelbench/internal/verify"
)

const float32Size = 4

// Report holds the figures of one run.
type Report struct {
	Driver     string
	Device     string
	Elements   int
	GlobalSize int
	LocalSize  int

	Kernel   stats.Summary
	Transfer stats.Summary

	GFlops      float64
	KernelGiB   float64
	TransferGiB float64

	Verification verify.Result
}

func newReport(sel gpu.Selection, cfg config.BenchmarkConfig, kernel, transfer stats.Summary, res verify.Result) *Report {
	n := cfg.Elements
	return &Report{
		Driver:     sel.Driver,
		Device:     sel.DeviceInfo.Name,
		Elements:   n,
		GlobalSize: dispatch.GlobalSize(n, cfg.LocalSize),
		LocalSize:  cfg.LocalSize,
		Kernel:     kernel,
		Transfer:   transfer,
		GFlops:     stats.Throughput(n, kernel.Mean) / 1e9,
		// a and b are read and c is written once per launch.
		KernelGiB:    stats.BandwidthGiB(3*int64(n)*float32Size, kernel.Mean),
		TransferGiB:  stats.BandwidthGiB(int64(n)*float32Size, transfer.Mean),
		Verification: res,
	}
}

// Print writes the human-readable report.
func (r *Report) Print(w io.Writer) error {
	lines := []string{
		fmt.Sprintf("Device: %s (%s)", r.Device, r.Driver),
		fmt.Sprintf("Data size: %d elements, global work size %d, local work size %d", r.Elements, r.GlobalSize, r.LocalSize),
		fmt.Sprintf("Kernel average time: %.6f+-%.6f s (%d of %d laps used)", r.Kernel.Mean, r.Kernel.Std, r.Kernel.Used, r.Kernel.Count),
		fmt.Sprintf("GFlops: %.4f", r.GFlops),
		fmt.Sprintf("VRAM bandwidth: %.4f GiB/s", r.KernelGiB),
		fmt.Sprintf("Result data transfer time: %.6f+-%.6f s", r.Transfer.Mean, r.Transfer.Std),
		fmt.Sprintf("VRAM -> RAM bandwidth: %.4f GiB/s", r.TransferGiB),
		r.result(),
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) result() string {
	v := r.Verification
	if v.OK() {
		return fmt.Sprintf("Result: OK (%d elements checked)", v.Checked)
	}
	return fmt.Sprintf("Result: FAIL at index %d: expected %v, got %v (%d of %d elements differ)",
		v.First.Index, v.First.Expected, v.First.Actual, v.Mismatches, v.Checked)
}
