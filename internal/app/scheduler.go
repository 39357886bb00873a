package app

import "time"

// Task is a pending callback. Cancel may be called any number of times.
type Task interface {
	Cancel()
}

// Scheduler runs callbacks after a delay without blocking the caller.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Task
}

// WallClock schedules callbacks on real timers.
var WallClock Scheduler = wallClock{}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, fn func()) Task {
	return timerTask{timer: time.AfterFunc(d, fn)}
}

type timerTask struct {
	timer *time.Timer
}

func (t timerTask) Cancel() {
	t.timer.Stop()
}
