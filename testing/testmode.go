// Package testing switches the binaries into test mode for any test binary
// that blank-imports it.
package testing

import (
	"os"
	"sync"
)

// ModeEnv is the variable read by app.InTestMode.
const ModeEnv = "INVENTORY_TEST_MODE"

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv(ModeEnv, "1")
	})
}

func init() {
	ensureTestMode()
}
