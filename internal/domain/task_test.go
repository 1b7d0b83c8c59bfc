package domain

import (
	"testing"
	"time"
)

func TestTaskStatusTransitions(t *testing.T) {
	cases := []struct {
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{TaskToDo, TaskInProgress, true},
		{TaskToDo, TaskReview, false},
		{TaskToDo, TaskDone, false},
		{TaskInProgress, TaskToDo, true},
		{TaskInProgress, TaskReview, true},
		{TaskInProgress, TaskDone, false},
		{TaskReview, TaskInProgress, true},
		{TaskReview, TaskDone, true},
		{TaskReview, TaskToDo, false},
		{TaskDone, TaskInProgress, true},
		{TaskDone, TaskReview, false},
		{TaskDone, TaskToDo, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestTaskStatusSelfTransitionRejected(t *testing.T) {
	for _, status := range []TaskStatus{TaskToDo, TaskInProgress, TaskReview, TaskDone} {
		if status.CanTransitionTo(status) {
			t.Errorf("%s -> %s should be rejected", status, status)
		}
	}
}

func TestTaskStatusValid(t *testing.T) {
	if !TaskReview.Valid() {
		t.Fatal("Review should be a valid status")
	}
	if TaskStatus("Archived").Valid() {
		t.Fatal("unknown status should not validate")
	}
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	task := Task{Status: TaskInProgress, DueDate: &past}
	if !task.IsOverdue(now) {
		t.Fatal("unfinished task past due date should be overdue")
	}
	task.Status = TaskDone
	if task.IsOverdue(now) {
		t.Fatal("done task should never be overdue")
	}
	task = Task{Status: TaskToDo, DueDate: &future}
	if task.IsOverdue(now) {
		t.Fatal("task due in the future should not be overdue")
	}
	task = Task{Status: TaskToDo}
	if task.IsOverdue(now) {
		t.Fatal("task without due date should not be overdue")
	}
}

func TestDaysUntilDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	due := now.Add(72 * time.Hour)
	task := Task{DueDate: &due}
	days, ok := task.DaysUntilDue(now)
	if !ok || days != 3 {
		t.Fatalf("expected 3 days, got %d (ok=%v)", days, ok)
	}

	overdue := now.Add(-24 * time.Hour)
	task = Task{DueDate: &overdue}
	days, ok = task.DaysUntilDue(now)
	if !ok || days >= 0 {
		t.Fatalf("expected negative days for overdue task, got %d (ok=%v)", days, ok)
	}

	task = Task{}
	if _, ok := task.DaysUntilDue(now); ok {
		t.Fatal("task without due date should report no countdown")
	}
}
