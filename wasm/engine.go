// Package wasm adapts concrete inference runtimes to backend.Engine: ONNX
// Runtime Web in browser builds and wasmer on native hosts.
package wasm

import (
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

var (
	ErrRuntimeUnavailable = utils.NewError("inference runtime not loaded")
	ErrInvalidThreadCount = utils.NewError("thread count must be at least 1")
	ErrEmptyAssetPath     = utils.NewError("asset path is empty")
	ErrBinaryTooLarge     = utils.NewError("backend binary exceeds size limit")
)
