// Package testing switches the process into test mode when imported, so
// packages that build cmd wiring can be tested without live dependencies.
package testing

import (
	"os"
	stdtesting "testing"
)

const testModeEnv = "CARGODESK_TEST_MODE"

func init() {
	_ = os.Setenv(testModeEnv, "true")
}

// TestMain runs m with test mode already enabled.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
