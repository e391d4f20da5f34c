package workerlink

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clockworkgo/controller/pkg/schedcore"
)

type fakeReporter struct {
	disconnected []int
}

func (f *fakeReporter) ResultFromWorker(schedcore.WorkerResult) error { return nil }
func (f *fakeReporter) DisconnectWorker(workerID int)                 { f.disconnected = append(f.disconnected, workerID) }

var _ ConnectionHealthReporter = (*fakeReporter)(nil)

// TestLink_MarkFailed_DisconnectsAfterThreshold verifies a Link calls
// DisconnectWorker exactly once, after failureThreshold consecutive RPC
// failures, matching registry.go's MarkFailed semantics.
func TestLink_MarkFailed_DisconnectsAfterThreshold(t *testing.T) {
	r := &fakeReporter{}
	l := &Link{workerID: 7, reporter: r, healthy: true}

	for i := 0; i < failureThreshold-1; i++ {
		l.markFailed()
	}
	assert.Empty(t, r.disconnected, "must not disconnect before the threshold is reached")

	l.markFailed()
	assert.Equal(t, []int{7}, r.disconnected)

	// Further failures past the threshold must not re-trigger.
	l.markFailed()
	assert.Equal(t, []int{7}, r.disconnected)
}

// TestLink_MarkHealthy_ResetsFailureCountAndRearmsTrigger verifies a
// success clears the failure count so a fresh run of failures can
// disconnect again later.
func TestLink_MarkHealthy_ResetsFailureCountAndRearmsTrigger(t *testing.T) {
	r := &fakeReporter{}
	l := &Link{workerID: 3, reporter: r, healthy: true}

	for i := 0; i < failureThreshold; i++ {
		l.markFailed()
	}
	assert.Equal(t, []int{3}, r.disconnected)

	l.markHealthy()
	for i := 0; i < failureThreshold; i++ {
		l.markFailed()
	}
	assert.Equal(t, []int{3, 3}, r.disconnected)
}
