package app

import (
	"os"
	"strconv"
	"sync"
)

const testModeEnv = "STOCKROOM_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && on
})

// InTestMode reports whether STOCKROOM_TEST_MODE is set. Binaries exit early
// and the middleware skips rate limiting when it is.
func InTestMode() bool {
	return testMode()
}
