package observability

import (
	"fmt"
	"runtime/debug"
)

// PanicError carries a recovered panic value and the stack it was raised on.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RecoverPanic logs a panic with its stack and swallows it. Call it directly
// in a defer:
//
//	defer observability.RecoverPanic(logger, "session reaper")
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		perr := &PanicError{Value: r, Stack: debug.Stack()}
		logger.WithFields(map[string]interface{}{
			"where": where,
			"stack": string(perr.Stack),
		}).WithError(perr).Error("Recovered from panic")
	}
}

// MustRecover turns a value from recover() into a *PanicError, or nil.
//
//	defer func() {
//		if perr := observability.MustRecover(recover()); perr != nil {
//			err = perr
//		}
//	}()
func MustRecover(r interface{}) error {
	if r == nil {
		return nil
	}
	return &PanicError{Value: r, Stack: debug.Stack()}
}
