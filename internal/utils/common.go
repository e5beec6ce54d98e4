package utils

import (
	"log"
	"runtime/debug"
)

func ToPointer[T any](value T) *T {
	return &value
}

func SafeGo(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SafeGo] recovered from panic: %v\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}

// ClampLimit bounds a caller-supplied page size to [1, max], substituting
// def when the caller sent nothing usable.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// TruncateForLog shortens long free-form text (feedback, task output) before
// it lands in a log line or notification.
func TruncateForLog(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
