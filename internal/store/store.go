// Package store defines the submission queue and result archive backing the
// scoring service.
//
// A [Submission] moves through a fixed lifecycle:
//
//	queued → processing → completed
//	                    ↘ failed
//
// Workers pull work with [Store.ClaimNext], which must hand each queued
// submission to exactly one claimant even under concurrent polling. The
// package ships two implementations: [MemStore] for tests and single-process
// deployments, and the postgres subpackage for durable multi-worker setups.
//
// Every implementation must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/cadence/internal/score"
)

// Status is the lifecycle state of a submission.
type Status string

const (
	// StatusQueued marks a submission waiting to be picked up by a worker.
	StatusQueued Status = "queued"

	// StatusProcessing marks a submission claimed by a worker.
	StatusProcessing Status = "processing"

	// StatusCompleted marks a submission with a stored result document.
	StatusCompleted Status = "completed"

	// StatusFailed marks a submission that could not be scored.
	StatusFailed Status = "failed"
)

// Sentinel errors shared by all implementations.
var (
	// ErrNotFound is returned when the requested submission does not exist.
	ErrNotFound = errors.New("store: submission not found")

	// ErrNoneQueued is returned by ClaimNext when no submission is waiting.
	ErrNoneQueued = errors.New("store: no queued submission")
)

// Submission is one recorded scoring request.
type Submission struct {
	// ID is the unique submission identifier (a UUID assigned on Create).
	ID string `json:"id"`

	// TaskID and ReaderID reference the external reading task and learner.
	// Both are opaque to the scorer and may be empty.
	TaskID   string `json:"task_id,omitempty"`
	ReaderID string `json:"reader_id,omitempty"`

	// AudioPath locates the stored recording on the shared filesystem.
	AudioPath string `json:"audio_path"`

	// Script is the reference text the learner was asked to read.
	Script string `json:"script"`

	// Language is the BCP-47 language tag of the script.
	Language string `json:"language,omitempty"`

	// Engine optionally pins the scoring engine for this submission.
	// Empty means the router decides.
	Engine string `json:"engine,omitempty"`

	Status Status `json:"status"`

	// Result is the full score document, set once Status is completed.
	Result *score.Result `json:"result,omitempty"`

	// Error describes the terminal failure, set once Status is failed.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists submissions and dispenses queued work to scoring workers.
type Store interface {
	// Create persists a new submission. A missing ID is assigned, Status is
	// forced to queued, and the timestamps are set.
	Create(ctx context.Context, sub *Submission) error

	// Get retrieves a submission by ID. Returns [ErrNotFound] when it does
	// not exist.
	Get(ctx context.Context, id string) (*Submission, error)

	// ClaimNext atomically moves the oldest queued submission to processing
	// and returns it. No two claimants may receive the same submission.
	// Returns [ErrNoneQueued] when the queue is empty.
	ClaimNext(ctx context.Context) (*Submission, error)

	// Complete stores the result document and marks the submission completed.
	Complete(ctx context.Context, id string, result *score.Result) error

	// Fail records a terminal error and marks the submission failed. A
	// non-nil result preserves the failure document, with its attempt
	// trail and probe metrics, for audit. Passing nil keeps whatever
	// result is already stored.
	Fail(ctx context.Context, id string, errMsg string, res *score.Result) error

	// RecoverStale fails every submission stuck in processing, returning how
	// many were recovered. Intended for startup after an unclean shutdown;
	// their claiming workers no longer exist.
	RecoverStale(ctx context.Context) (int, error)

	// ListRecent returns up to limit submissions ordered newest first.
	ListRecent(ctx context.Context, limit int) ([]*Submission, error)
}
