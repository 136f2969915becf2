package sandbox

import (
	"fmt"
	"time"
)

// ScriptError represents a handler script that failed: a Lua runtime
// error, a syntax error, or a missing handle() function.
type ScriptError struct {
	Method  string
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script error in %s: %s", e.Method, e.Message)
}

// TimeoutError represents a handler script that exceeded its wall-clock
// budget.
type TimeoutError struct {
	Method  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("script for %s exceeded %s", e.Method, e.Timeout)
}
