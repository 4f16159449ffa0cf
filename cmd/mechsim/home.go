package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theckman/yacspin"

	"github.com/robotcore/mechanism/component"
	"github.com/robotcore/mechanism/sched"
	"github.com/robotcore/mechanism/units"
)

// HomeCommand homes one homing_servo and exits
type HomeCommand struct {
	Timeout time.Duration `long:"timeout" default:"10s" description:"Give up after this long"`

	Args struct {
		Name string `positional-arg-name:"name" description:"Mechanism to home"`
	} `positional-args:"yes" required:"yes"`
}

// notify reports the outcome of t on done once it finishes.  done must
// have room for one value.
func notify(t sched.Task, done chan<- error) sched.Task {
	return sched.TaskFunc(func() (bool, error) {
		finished, err := t.Poll()
		if finished {
			done <- err
		}
		return finished, err
	})
}

// homeTask commands hs to its hold setpoint, which targets home, and
// finishes once the search has run and the sensor has been reset.
func homeTask(hs *component.HomingServo) sched.Task {
	hs.RequireHoming()
	return sched.Sequence(
		component.ApplySetpointTask(hs, hs.Config().HoldSetpoint),
		sched.WaitUntil(func() bool { return !hs.NeedsToHome() && !hs.Homing() }),
	)
}

// Execute implements flags.Commander
func (c *HomeCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rig, err := Build(cfg, newLogger())
	if err != nil {
		return err
	}
	defer rig.Close()

	mech, ok := rig.Mechanism(c.Args.Name)
	if !ok {
		return fmt.Errorf("no mechanism named %q", c.Args.Name)
	}
	hs, ok := mech.(*component.HomingServo)
	if !ok {
		return fmt.Errorf("%s is not a homing_servo", c.Args.Name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	// the loop is not running yet, so the task can be scheduled directly
	done := make(chan error, 1)
	rig.Loop.Schedule(notify(homeTask(hs), done))
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		rig.Loop.Run(ctx)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[11],
		Suffix:            " homing " + c.Args.Name,
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return err
	}
	if err := spinner.Start(); err != nil {
		return err
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				spinner.StopFailMessage(err.Error())
				spinner.StopFail()
				return err
			}
			spinner.StopMessage("home")
			return spinner.Stop()
		case <-ctx.Done():
			spinner.StopFailMessage(ctx.Err().Error())
			spinner.StopFail()
			return ctx.Err()
		case <-ticker.C:
			var searching bool
			var pos float64
			err := rig.Do(func() {
				searching = hs.Homing()
				pos = units.Degrees(hs.Position())
			})
			if err != nil {
				continue
			}
			phase := "approaching"
			if searching {
				phase = "seeking stop"
			}
			spinner.Message(fmt.Sprintf("%s at %.1f°", phase, pos))
		}
	}
}
