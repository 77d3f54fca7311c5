package convert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/vinnividivicci/openingbim-cicd/internal/engine"
	"github.com/vinnividivicci/openingbim-cicd/internal/jobs"
	"github.com/vinnividivicci/openingbim-cicd/internal/store"
)

type fakeConverter struct {
	out      []byte
	err      error
	progress []int
	release  chan struct{}
}

func (f *fakeConverter) Convert(_ context.Context, _ []byte, onProgress engine.ProgressFunc) ([]byte, error) {
	if f.release != nil {
		<-f.release
	}
	for _, pct := range f.progress {
		onProgress(pct)
	}
	return f.out, f.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir(), time.Hour, time.Minute, nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return s
}

func waitForTerminal(t *testing.T, ledger *jobs.Ledger, id string) jobs.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if j, ok := ledger.Get(id); ok && j.Status.IsTerminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return jobs.Job{}
}

func TestConvertReturnsImmediately(t *testing.T) {
	t.Parallel()

	ledger := jobs.NewLedger(nil)
	conv := &fakeConverter{out: []byte("frag"), release: make(chan struct{})}
	p := New(ledger, newTestStore(t), conv)

	id := p.Convert(context.Background(), []byte("ifc"), "office.ifc")

	j, ok := ledger.Get(id)
	if !ok {
		t.Fatal("job not registered")
	}
	if j.Status != jobs.StatusInProgress {
		t.Fatalf("status = %q, want in-progress while engine is busy", j.Status)
	}

	close(conv.release)
	waitForTerminal(t, ledger, id)
}

func TestConvertCompletesWithStoredArtifact(t *testing.T) {
	t.Parallel()

	ledger := jobs.NewLedger(nil)
	artifacts := newTestStore(t)
	p := New(ledger, artifacts, &fakeConverter{out: []byte("fragment bytes"), progress: []int{50, 100}})

	id := p.Convert(context.Background(), []byte("ifc"), "office.ifc")
	j := waitForTerminal(t, ledger, id)

	if j.Status != jobs.StatusCompleted {
		t.Fatalf("status = %q, error = %+v", j.Status, j.Error)
	}
	if j.Progress != 100 {
		t.Fatalf("progress = %d, want 100", j.Progress)
	}

	var res Result
	if err := json.Unmarshal(j.Result, &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if res.FileName != "office.frag" {
		t.Fatalf("file name = %q, want office.frag", res.FileName)
	}
	if res.Size != int64(len("fragment bytes")) {
		t.Fatalf("size = %d", res.Size)
	}

	data, _, err := artifacts.GetFile(res.FileID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if string(data) != "fragment bytes" {
		t.Fatalf("artifact bytes = %q", data)
	}
}

func TestConvertEngineFailureFailsJob(t *testing.T) {
	t.Parallel()

	ledger := jobs.NewLedger(nil)
	p := New(ledger, newTestStore(t), &fakeConverter{err: errors.New("unsupported schema IFC2X2")})

	id := p.Convert(context.Background(), []byte("ifc"), "bad.ifc")
	j := waitForTerminal(t, ledger, id)

	if j.Status != jobs.StatusFailed {
		t.Fatalf("status = %q, want failed", j.Status)
	}
	if j.Error == nil || j.Error.Reason != "unsupported schema IFC2X2" {
		t.Fatalf("error = %+v, want verbatim engine message", j.Error)
	}
	if j.Result != nil {
		t.Fatal("failed job must not carry a result")
	}
}

func TestScaleProgressBand(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want int }{
		{0, 20},
		{50, 55},
		{100, 90},
		{-5, 20},
		{150, 90},
	}
	for _, tc := range tests {
		if got := scaleProgress(tc.in); got != tc.want {
			t.Fatalf("scaleProgress(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
