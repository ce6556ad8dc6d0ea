package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv, when truthy, makes the binaries return before touching Postgres or Redis.
const TestModeEnv = "CARGODESK_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	return on
})

// InTestMode reports whether runtime side effects should be skipped. The
// environment is read once per process.
func InTestMode() bool {
	return testMode()
}
