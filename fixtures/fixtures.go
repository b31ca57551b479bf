package fixtures

import (
	_ "embed"
)

//go:embed kernels/aplusb.cl
var AplusbKernel string

//go:embed config/config.yaml.template
var ConfigTemplate []byte
