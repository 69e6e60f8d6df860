package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/davidahmann/infraweave-panel/internal/journal"
	"github.com/davidahmann/infraweave-panel/internal/saga"
	"github.com/davidahmann/infraweave-panel/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	s, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := journal.Migrate(s.DB(), journal.DBSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }

func TestRunCRUD(t *testing.T) {
	s := openTestStore(t)

	run := journal.Run{
		RunID:        "r1",
		Kind:         journal.KindGitHubPullRequest,
		Repository:   "org/repo",
		SourceBranch: "feature",
		TargetBranch: "main",
		Status:       journal.StatusRunning,
		CreatedAt:    "2025-12-20T00:00:00Z",
		UpdatedAt:    "2025-12-20T00:00:00Z",
	}
	if err := s.PutRun(run); err != nil {
		t.Fatalf("put run: %v", err)
	}
	got, ok := s.GetRun("r1")
	if !ok || got.Status != journal.StatusRunning || len(got.AppliedSteps) != 0 || got.FailedStep != nil {
		t.Fatalf("get run mismatch: ok=%v got=%+v", ok, got)
	}

	run.Status = journal.StatusFailed
	run.AppliedSteps = []string{"create_branch"}
	run.FailedStep = strPtr("commit_file")
	run.Error = strPtr("GitHub API Error: 409 Conflict")
	run.UpdatedAt = "2025-12-20T00:00:05Z"
	if err := s.PutRun(run); err != nil {
		t.Fatalf("update run: %v", err)
	}
	got, ok = s.GetRun("r1")
	if !ok || got.Status != journal.StatusFailed || got.AppliedSteps[0] != "create_branch" {
		t.Fatalf("updated run mismatch: ok=%v got=%+v", ok, got)
	}
	if got.FailedStep == nil || *got.FailedStep != "commit_file" || got.CreatedAt != "2025-12-20T00:00:00Z" {
		t.Fatalf("updated run mismatch: %+v", got)
	}

	if _, ok := s.GetRun("missing"); ok {
		t.Fatalf("expected missing run")
	}
	if err := s.PutRun(journal.Run{}); err != journal.ErrMissingRunID {
		t.Fatalf("expected ErrMissingRunID, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)
	for i, created := range []string{"2025-12-20T00:00:01Z", "2025-12-20T00:00:03Z", "2025-12-20T00:00:02Z"} {
		run := journal.Run{
			RunID:      fmt.Sprintf("r%d", i),
			Kind:       journal.KindGitLabMergeRequest,
			Repository: "group/project",
			Status:     journal.StatusSucceeded,
			WebURL:     strPtr(fmt.Sprintf("https://gitlab.com/group/project/-/merge_requests/%d", i)),
			CreatedAt:  created,
			UpdatedAt:  created,
		}
		if err := s.PutRun(run); err != nil {
			t.Fatalf("put run: %v", err)
		}
	}

	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "r1" || runs[1].RunID != "r2" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].WebURL == nil || !strings.HasSuffix(*runs[0].WebURL, "/1") {
		t.Fatalf("unexpected web url: %v", runs[0].WebURL)
	}
}

func TestRecorderAgainstSQLite(t *testing.T) {
	s := openTestStore(t)
	rec := journal.NewRecorder(s, journal.KindGitHubPullRequest, types.MergeRequestOptions{RepositoryPath: "org/repo"}, nil, nil)

	_, err := saga.Run(context.Background(), rec,
		saga.Step{Name: "create_branch", Run: func(context.Context) error { return nil }},
		saga.Step{Name: "commit_file", Run: func(context.Context) error { return errors.New("boom") }},
	)
	if err == nil {
		t.Fatalf("expected saga error")
	}

	got, ok := s.GetRun(rec.RunID())
	if !ok {
		t.Fatalf("run not persisted")
	}
	if got.Status != journal.StatusFailed || len(got.AppliedSteps) != 1 || got.Error == nil || *got.Error != "boom" {
		t.Fatalf("unexpected persisted run: %+v", got)
	}
}
