package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

const testModeEnv = "TREASURY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads TREASURY_TEST_MODE; any strconv.ParseBool true value enables it.
func detectTestMode() {
	enabled, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testModeFlag.Store(enabled)
}

// InTestMode reports whether binaries should skip runtime startup and the router
// should skip request logging.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}
