package amongirl

import (
	"cmp"
	"errors"
	"slices"
	"time"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrTaskNotCurrent   = errors.New("task is not the current task")
	ErrTaskNotCompleted = errors.New("task is not completed")
)

// GenerateTasks draws one template per category and turns them into the
// ordered task batch for a new player. pick(n) must return a value in
// [0, n). An empty playerID yields no tasks; callers must treat that as a
// failure rather than persisting an empty list.
func GenerateTasks(c Catalog, playerID string, pick func(n int) int, newID func() string, now time.Time) []Task {
	if playerID == "" {
		return nil
	}

	tasks := make([]Task, 0, len(Categories))
	for i, cat := range Categories {
		pool := c[cat]
		if len(pool) == 0 {
			return nil
		}
		tmpl := pool[pick(len(pool))]
		order := i + 1
		tasks = append(tasks, Task{
			ID:           newID(),
			PlayerID:     playerID,
			Title:        tmpl.Title,
			Description:  tmpl.Description,
			Location:     tmpl.Location,
			Category:     cat,
			ExternalLink: tmpl.ExternalLink,
			Visible:      order == 1,
			Order:        order,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return tasks
}

// SortTasks orders tasks by ascending Order.
func SortTasks(tasks []Task) {
	slices.SortFunc(tasks, func(a, b Task) int { return cmp.Compare(a.Order, b.Order) })
}

// CurrentTask returns the index of the lowest-order visible, incomplete
// task, or -1. tasks must be sorted.
func CurrentTask(tasks []Task) int {
	return slices.IndexFunc(tasks, Task.Current)
}

// CompleteTask marks the task with the given id complete and reveals the
// task that follows it. The task must be the player's current task.
// It returns the indexes of the tasks it changed. tasks must be sorted.
func CompleteTask(tasks []Task, taskID string, now time.Time) ([]int, error) {
	idx := slices.IndexFunc(tasks, func(t Task) bool { return t.ID == taskID })
	if idx < 0 {
		return nil, ErrTaskNotFound
	}
	if idx != CurrentTask(tasks) {
		return nil, ErrTaskNotCurrent
	}

	tasks[idx].Completed = true
	tasks[idx].UpdatedAt = now
	changed := []int{idx}

	next := slices.IndexFunc(tasks, func(t Task) bool { return t.Order == tasks[idx].Order+1 })
	if next >= 0 && !tasks[next].Visible {
		tasks[next].Visible = true
		tasks[next].UpdatedAt = now
		changed = append(changed, next)
	}
	return changed, nil
}

// RepairTasks restores the "one current task" invariant after an
// interrupted sequence: when nothing is current, the lowest-order
// incomplete task becomes visible. It returns the index it changed, or -1.
// Calling it again right after is a no-op. tasks must be sorted.
func RepairTasks(tasks []Task, now time.Time) int {
	if CurrentTask(tasks) >= 0 {
		return -1
	}
	idx := slices.IndexFunc(tasks, func(t Task) bool { return !t.Completed })
	if idx < 0 {
		return -1
	}
	tasks[idx].Visible = true
	tasks[idx].UpdatedAt = now
	return idx
}

// ApproveTask records admin approval of a completed task. Approval does not
// touch visibility; advancing is CompleteTask's job alone.
func ApproveTask(t *Task, now time.Time) error {
	if !t.Completed {
		return ErrTaskNotCompleted
	}
	if !t.Approved {
		t.Approved = true
		t.UpdatedAt = now
	}
	return nil
}

// AllApproved reports whether every task is completed and approved.
func AllApproved(tasks []Task) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if !t.Completed || !t.Approved {
			return false
		}
	}
	return true
}
