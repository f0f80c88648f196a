//go:build cuda
// +build cuda

package imagegan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/cu"
	"gorgonia.org/gorgonia"
)

func selectCUDA() (*Device, error) {
	n, err := cu.NumDevices()
	if err != nil {
		return nil, errors.Wrap(err, "Can't enumerate CUDA devices")
	}
	if n == 0 {
		return nil, fmt.Errorf("Device 'cuda' requested, but no CUDA devices found")
	}
	name, err := cu.Device(0).Name()
	if err != nil {
		return nil, errors.Wrap(err, "Can't get name of CUDA device #0")
	}
	return &Device{
		Name:        DeviceCUDA,
		Description: fmt.Sprintf("cuda: %s (%d device(s) found, using #0); %s", name, n, describeCPU()),
		VMOpts:      []gorgonia.VMOpt{gorgonia.UseCudaFor()},
	}, nil
}
