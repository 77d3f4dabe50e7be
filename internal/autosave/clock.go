package autosave

import "time"

// Task is a scheduled callback that can be cancelled.
type Task interface {
	// Stop cancels the task. It reports false if the task already ran or was stopped.
	Stop() bool
}

// Clock schedules callbacks. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Task
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}

// SystemClock schedules with time.AfterFunc.
var SystemClock Clock = realClock{}
