//go:build !cuda
// +build !cuda

package imagegan

import (
	"fmt"
)

func selectCUDA() (*Device, error) {
	return nil, fmt.Errorf("Device 'cuda' requested, but binary is built without 'cuda' tag")
}
