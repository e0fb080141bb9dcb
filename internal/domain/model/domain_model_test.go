package model

import (
	"errors"
	"testing"

	"media-generation-jobs/internal/domain"
	"media-generation-jobs/internal/domain/errclass"
)

func testDetail() ErrorDetail {
	return DetailFrom(errclass.Classify("", 422), "raw payload")
}

func TestNewJobStartsPending(t *testing.T) {
	job := NewJob("owner-1", ToolImageGen, map[string]any{"prompt": "a cat"}, 10)
	if job.ID == "" {
		t.Fatal("id must be assigned at creation")
	}
	if job.Status != JobStatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.Outputs != nil || job.Error != nil || job.CompletedAt != nil {
		t.Fatal("fresh job must carry no terminal data")
	}
}

func TestInputSnapshotIsImmutable(t *testing.T) {
	params := map[string]any{"prompt": "a cat", "opts": map[string]any{"size": "1024"}}
	job := NewJob("owner-1", ToolImageGen, params, 10)

	params["prompt"] = "mutated"
	params["opts"].(map[string]any)["size"] = "64"

	if job.InputSnapshot["prompt"] != "a cat" {
		t.Fatal("snapshot must not alias caller params")
	}
	if job.InputSnapshot["opts"].(map[string]any)["size"] != "1024" {
		t.Fatal("nested snapshot must not alias caller params")
	}
}

func TestMarkProcessingRequiresHandle(t *testing.T) {
	job := NewJob("owner-1", ToolImageGen, map[string]any{"prompt": "x"}, 10)
	if err := job.MarkProcessing(""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	if err := job.MarkProcessing("req_123"); err != nil {
		t.Fatalf("err = %v", err)
	}
	if job.Status != JobStatusProcessing || job.ProviderHandle != "req_123" {
		t.Fatalf("job = %+v", job)
	}
}

func TestCompleteOnlyFromProcessing(t *testing.T) {
	job := NewJob("owner-1", ToolImageGen, map[string]any{"prompt": "x"}, 10)
	if err := job.Complete([]string{"https://cdn/x.png"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("complete from pending: err = %v", err)
	}

	_ = job.MarkProcessing("req_123")
	if err := job.Complete(nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("complete without outputs: err = %v", err)
	}
	if err := job.Complete([]string{"https://cdn/x.png"}); err != nil {
		t.Fatalf("err = %v", err)
	}
	if job.CompletedAt == nil {
		t.Fatal("completedAt must be set on terminal transition")
	}
	if job.Error != nil {
		t.Fatal("completed job must not carry error detail")
	}
}

func TestFailFromPendingAndProcessing(t *testing.T) {
	// Synchronous provider rejection fails a pending job.
	job := NewJob("owner-1", ToolImageGen, map[string]any{"prompt": "x"}, 10)
	if err := job.Fail(testDetail()); err != nil {
		t.Fatalf("err = %v", err)
	}
	if job.Status != JobStatusFailed || job.Error == nil || job.CompletedAt == nil {
		t.Fatalf("job = %+v", job)
	}
	if job.Outputs != nil {
		t.Fatal("failed job must not carry outputs")
	}

	// Webhook failure fails a processing job.
	job2 := NewJob("owner-1", ToolImageGen, map[string]any{"prompt": "x"}, 10)
	_ = job2.MarkProcessing("req_9")
	if err := job2.Fail(testDetail()); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	job := NewJob("owner-1", ToolImageGen, map[string]any{"prompt": "x"}, 10)
	_ = job.MarkProcessing("req_123")
	_ = job.Complete([]string{"https://cdn/x.png"})

	if err := job.Fail(testDetail()); !errors.Is(err, domain.ErrJobTerminal) {
		t.Fatalf("fail after complete: err = %v", err)
	}
	if err := job.Complete([]string{"other"}); !errors.Is(err, domain.ErrJobTerminal) {
		t.Fatalf("complete after complete: err = %v", err)
	}
	if err := job.MarkProcessing("req_456"); !errors.Is(err, domain.ErrJobTerminal) {
		t.Fatalf("mark processing after complete: err = %v", err)
	}
}

func TestExactlyOneOfOutputsOrErrorInTerminalState(t *testing.T) {
	// Exercise both terminal paths and check the exclusivity invariant.
	completed := NewJob("o", ToolImageGen, map[string]any{"prompt": "x"}, 1)
	_ = completed.MarkProcessing("h")
	_ = completed.Complete([]string{"out"})
	if len(completed.Outputs) == 0 || completed.Error != nil {
		t.Fatal("completed: want outputs set, error unset")
	}

	failed := NewJob("o", ToolImageGen, map[string]any{"prompt": "x"}, 1)
	_ = failed.MarkProcessing("h")
	_ = failed.Fail(testDetail())
	if failed.Error == nil || failed.Outputs != nil {
		t.Fatal("failed: want error set, outputs unset")
	}
}

func TestRetryable(t *testing.T) {
	job := NewJob("o", ToolImageGen, map[string]any{"prompt": "x"}, 1)
	if job.Retryable() {
		t.Fatal("pending job is not retryable")
	}
	_ = job.Fail(DetailFrom(errclass.Classify("", 422), ""))
	if job.Retryable() {
		t.Fatal("content violations must not be retryable")
	}

	job2 := NewJob("o", ToolImageGen, map[string]any{"prompt": "x"}, 1)
	_ = job2.Fail(DetailFrom(errclass.Classify("", 503), ""))
	if !job2.Retryable() {
		t.Fatal("server errors must be retryable")
	}
}

func TestStatusRankOrdersLifecycle(t *testing.T) {
	if !(JobStatusPending.Rank() < JobStatusProcessing.Rank()) {
		t.Fatal("pending must rank below processing")
	}
	if !(JobStatusProcessing.Rank() < JobStatusCompleted.Rank()) {
		t.Fatal("processing must rank below terminal")
	}
	if JobStatusCompleted.Rank() != JobStatusFailed.Rank() {
		t.Fatal("terminal states rank equally")
	}
}

func TestToolRegistryValidate(t *testing.T) {
	reg := DefaultToolRegistry()

	if err := reg.Validate(ToolImageGen, map[string]any{"prompt": "a cat"}); err != nil {
		t.Fatalf("err = %v", err)
	}
	if err := reg.Validate(ToolImageGen, map[string]any{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("missing prompt: err = %v", err)
	}
	if err := reg.Validate(ToolImageGen, map[string]any{"prompt": ""}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty prompt: err = %v", err)
	}
	if err := reg.Validate(ToolVideoGen, map[string]any{"prompt": "x"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("missing duration: err = %v", err)
	}
	if err := reg.Validate("no-such-tool", map[string]any{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("unknown tool: err = %v", err)
	}
}

func TestToolRegistryCost(t *testing.T) {
	reg := DefaultToolRegistry()
	img, _ := reg.Get(ToolImageGen)
	if got := img.Cost(map[string]any{"prompt": "x"}); got != 10 {
		t.Fatalf("default image cost = %d, want 10", got)
	}
	if got := img.Cost(map[string]any{"prompt": "x", "quantity": float64(4)}); got != 40 {
		t.Fatalf("image cost x4 = %d, want 40", got)
	}
	vid, _ := reg.Get(ToolVideoGen)
	if got := vid.Cost(map[string]any{"prompt": "x", "duration_seconds": 8}); got != 200 {
		t.Fatalf("video cost = %d, want 200", got)
	}
}
