package health

import "errors"

var (
	ErrStoreRequired         = errors.New("repository store is required")
	ErrOracleRequired        = errors.New("permission oracle is required")
	ErrBusRequired           = errors.New("event bus is required")
	ErrPostProcessorRequired = errors.New("post processor is required")
	ErrPoolRequired          = errors.New("background pool is required")
	ErrCheckerRequired       = errors.New("checker is required")
)
