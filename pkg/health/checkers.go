package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck reports failure once the goroutine count exceeds
// threshold. Useful as a liveness probe for catching leaks.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("%d goroutines, threshold %d", n, threshold)
		}
		return nil
	}
}
