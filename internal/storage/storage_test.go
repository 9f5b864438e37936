package storage

import (
	"testing"
	"time"

	"github.com/michaelbrown/crucible/internal/sandbox"
)

func TestFromResult(t *testing.T) {
	completed := FromResult("id1", "src", &sandbox.Result{
		Duration: time.Millisecond,
		Text:     "out",
		Image:    []byte{1, 2, 3},
	})
	if completed.Status != StatusCompleted || completed.ImageSize != 3 {
		t.Errorf("completed = %+v", completed)
	}
	if !completed.HasImage() {
		t.Error("completed run should report an image")
	}

	timedOut := FromResult("id2", "src", &sandbox.Result{
		Duration: time.Second,
		Err:      &sandbox.Failure{Kind: sandbox.KindTimeout},
	})
	if timedOut.Status != StatusTimedOut {
		t.Errorf("timed out status = %q", timedOut.Status)
	}

	failed := FromResult("id3", "src", &sandbox.Result{
		Err: &sandbox.Failure{Kind: sandbox.KindExecution, Args: []string{"boom"}},
	})
	if failed.Status != StatusFailed || failed.ErrorKind != sandbox.KindExecution {
		t.Errorf("failed = %+v", failed)
	}
	if failed.Text != "" {
		t.Error("failed run must not carry text")
	}
}
