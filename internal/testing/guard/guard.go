// Package guard marks the process as a test run unless the caller already
// chose a mode, so binaries imported by tests never dial Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

const modeEnv = "INVENTORY_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(modeEnv) == "" {
			_ = os.Setenv(modeEnv, "1")
		}
	})
}
