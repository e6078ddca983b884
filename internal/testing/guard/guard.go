// Package guard is imported by tests to put the process in test mode and
// keep realtime feeds off unless a test opts in.
package guard

import "os"

var defaults = map[string]string{
	"STOCKROOM_TEST_MODE": "true",
	"REALTIME_SOURCE":     "none",
}

func init() {
	for key, value := range defaults {
		if _, ok := os.LookupEnv(key); !ok {
			_ = os.Setenv(key, value)
		}
	}
}
