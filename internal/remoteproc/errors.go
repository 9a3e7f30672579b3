package remoteproc

import "errors"

var (
	ErrInvalidArgument   = errors.New("remoteproc: invalid argument")
	ErrDeviceUnavailable = errors.New("remoteproc: device unavailable")
	ErrInvalidAddress    = errors.New("remoteproc: invalid address")
	ErrNotFound          = errors.New("remoteproc: address not mapped")
	ErrShortWrite        = errors.New("remoteproc: short write")
	ErrShortRead         = errors.New("remoteproc: short read")
	ErrPlanner           = errors.New("remoteproc: load planner failed")
	ErrBackendFailure    = errors.New("remoteproc: backend hook failed")
	ErrInvalidState      = errors.New("remoteproc: invalid state")
	ErrRemoved           = errors.New("remoteproc: controller removed")
	ErrNoChannel         = errors.New("remoteproc: no notification channel")
)
