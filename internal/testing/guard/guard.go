// Package guard forces test mode for any test binary that imports it, so no
// main package side effects run under go test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CARGO_TEST_MODE") == "" {
			_ = os.Setenv("CARGO_TEST_MODE", "1")
		}
	})
}
