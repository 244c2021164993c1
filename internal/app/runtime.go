package app

import (
	"os"
	"sync"
)

// testModeEnv short-circuits main() so go test can link the binaries
// without opening database or Redis connections.
const testModeEnv = "GROUPLEDGER_TEST_MODE"

var testModeOnce = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether runtime side effects should be skipped.
func InTestMode() bool {
	return testModeOnce()
}
