//go:build !js || !wasm

package utils

// redirectLogToBridge is a no-op on native platforms; l.output already
// carries the line.
func (l *Logger) redirectLogToBridge(level LogLevel, logLine string) {}
