package dispatch

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards against leaked DistributorQueue/BatchSender worker
// goroutines across the package's test suite, the same tool the
// teacher's own go.mod carries for concurrency tests.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
