// Package sched runs mechanisms on a fixed period and drives cooperative
// tasks from the same goroutine.
//
// Tasks never block.  Each tick the loop polls every scheduled task once;
// a task reports whether it has finished.
package sched

import "go.uber.org/multierr"

// Task is a unit of work advanced once per tick.
type Task interface {
	// Poll advances the task.  It returns done once the task has finished;
	// a non-nil error also ends the task.
	Poll() (done bool, err error)
}

// TaskFunc adapts a function to a Task.
type TaskFunc func() (bool, error)

// Poll calls f.
func (f TaskFunc) Poll() (bool, error) { return f() }

// Once runs fn on the first poll and finishes.
func Once(fn func() error) Task {
	return TaskFunc(func() (bool, error) {
		return true, fn()
	})
}

// Run runs fn every poll and never finishes on its own.
func Run(fn func() error) Task {
	return TaskFunc(func() (bool, error) {
		return false, fn()
	})
}

// WaitUntil finishes on the first poll where cond holds.
func WaitUntil(cond func() bool) Task {
	return TaskFunc(func() (bool, error) {
		return cond(), nil
	})
}

type sequence struct {
	tasks []Task
	idx   int
}

// Sequence runs tasks one after another.  When one finishes the next is
// polled in the same tick.
func Sequence(tasks ...Task) Task {
	return &sequence{tasks: tasks}
}

func (s *sequence) Poll() (bool, error) {
	for s.idx < len(s.tasks) {
		done, err := s.tasks[s.idx].Poll()
		if err != nil {
			return true, err
		}
		if !done {
			return false, nil
		}
		s.idx++
	}
	return true, nil
}

type parallel struct {
	tasks []Task
	done  []bool
}

// Parallel polls every task each tick and finishes when all have.
func Parallel(tasks ...Task) Task {
	return &parallel{tasks: tasks, done: make([]bool, len(tasks))}
}

func (p *parallel) Poll() (bool, error) {
	var errs error
	all := true
	for i, t := range p.tasks {
		if p.done[i] {
			continue
		}
		done, err := t.Poll()
		errs = multierr.Append(errs, err)
		p.done[i] = done
		all = all && done
	}
	if errs != nil {
		return true, errs
	}
	return all, nil
}

type deadline struct {
	main   Task
	others *parallel
}

// Deadline polls others alongside main and finishes when main does,
// abandoning any others still running.  Others are polled before main
// within a tick.
func Deadline(main Task, others ...Task) Task {
	return &deadline{main: main, others: &parallel{tasks: others, done: make([]bool, len(others))}}
}

func (d *deadline) Poll() (bool, error) {
	if _, err := d.others.Poll(); err != nil {
		return true, err
	}
	return d.main.Poll()
}
