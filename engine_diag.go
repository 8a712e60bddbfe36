package engine

import "github.com/talon3d/engine/diag"

// These aliases let callers write engine.Logger / engine.Error instead of
// reaching into the diag subpackage directly, while every internal
// package (warehouse, scene, cull, ...) depends only on diag and never on
// the root engine package — keeping the dependency graph acyclic.
type (
	Logger        = diag.Logger
	DefaultLogger = diag.DefaultLogger
	Error         = diag.Error
	ErrorKind     = diag.ErrorKind
	OnceWarner    = diag.OnceWarner
)

const (
	InitializationFailed = diag.InitializationFailed
	OutOfMemory          = diag.OutOfMemory
	SwapchainOutOfDate   = diag.SwapchainOutOfDate
	DeviceLost           = diag.DeviceLost
	ShaderModuleInvalid  = diag.ShaderModuleInvalid
	CapacityExceeded     = diag.CapacityExceeded
)

var (
	NewDefaultLogger = diag.NewDefaultLogger
	NewNopLogger     = diag.NewNopLogger
	NewError         = diag.NewError
	WrapError        = diag.WrapError
	KindSentinel     = diag.KindSentinel
)
