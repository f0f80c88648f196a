package imagegan

import (
	"fmt"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"gorgonia.org/gorgonia"
)

// Device Compute device chosen once at startup
//
// Name - "cpu" or "cuda"
// Description - human readable summary for logs
// VMOpts - options which should be passed to every tape machine
//
type Device struct {
	Name        string
	Description string
	VMOpts      []gorgonia.VMOpt
}

// SelectDevice Resolves configured device. Requesting CUDA in a binary built without 'cuda' tag is an error.
func SelectDevice(cfg *Config) (*Device, error) {
	switch cfg.Device {
	case DeviceCPU:
		return &Device{
			Name:        DeviceCPU,
			Description: describeCPU(),
		}, nil
	case DeviceCUDA:
		return selectCUDA()
	default:
		return nil, fmt.Errorf("Device '%s' is not supported", cfg.Device)
	}
}

func describeCPU() string {
	simd := []string{}
	for _, f := range []cpuid.FeatureID{cpuid.SSE4, cpuid.AVX, cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.ASIMD} {
		if cpuid.CPU.Supports(f) {
			simd = append(simd, f.String())
		}
	}
	simdStr := "none"
	if len(simd) > 0 {
		simdStr = strings.Join(simd, ",")
	}
	return fmt.Sprintf("cpu: %s, %d physical / %d logical cores, SIMD: %s", cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, simdStr)
}

// vmOpts Returns device's VM options followed by extra ones. Device's slice is never modified.
func (d *Device) vmOpts(extra ...gorgonia.VMOpt) []gorgonia.VMOpt {
	opts := make([]gorgonia.VMOpt, 0, len(d.VMOpts)+len(extra))
	opts = append(opts, d.VMOpts...)
	return append(opts, extra...)
}
