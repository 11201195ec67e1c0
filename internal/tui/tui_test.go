package tui_test

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nixpig/pend/internal/store"
	"github.com/nixpig/pend/internal/tui"
)

func TestRender(t *testing.T) {
	t.Parallel()

	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	finished, err := st.Paths("finished")
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if err := finished.WriteExitCode(3); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if err := finished.WriteRecord(&store.Record{
		Job:      "finished",
		Cmd:      []string{"false"},
		PID:      999,
		Started:  time.Now().UTC(),
		Ended:    time.Now().UTC(),
		ExitCode: 3,
		Attempt:  2,
	}); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	running, err := st.Paths("inflight")
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	lock, err := running.AcquireLock()
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}
	defer lock.Release()

	if err := os.WriteFile(running.Log, []byte("..."), 0o644); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	var buf bytes.Buffer

	if err := tui.Render(&buf, st); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	output := buf.String()

	if !strings.Contains(output, "JOB") || !strings.Contains(output, "STATUS") {
		t.Errorf("expected table header: got '%q'", output)
	}

	if !strings.Contains(output, "exit 3") {
		t.Errorf("expected finished job status: got '%q'", output)
	}

	if !strings.Contains(output, "running") {
		t.Errorf("expected running job status: got '%q'", output)
	}
}
