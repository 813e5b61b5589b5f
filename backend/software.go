package backend

import (
	"github.com/gogpu/peel/gpucore"
	"github.com/gogpu/peel/internal/soft"
)

// init registers the software backend on package import.
func init() {
	Register(BackendSoftware, func() (gpucore.Device, error) {
		return soft.New(), nil
	})
}
