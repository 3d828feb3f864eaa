package observability

import "runtime/debug"

// RecoverPanic recovers a panic and logs it with the stack trace. Meant
// for deferred use in long-lived background goroutines, where an
// unrecovered panic would take the whole process down:
//
//	defer observability.RecoverPanic(logger, "invalidation receive loop")
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic":   r,
			"stack":   string(debug.Stack()),
			"context": context,
		}).Error("panic recovered")
	}
}
