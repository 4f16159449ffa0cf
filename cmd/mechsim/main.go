// Command mechsim runs robot mechanisms, real or simulated, behind an HTTP
// interface.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edaniels/golog"
	"github.com/jessevdk/go-flags"
	yml "gopkg.in/yaml.v2"

	"github.com/robotcore/mechanism/config"
)

// Version is the version number.  Typically injected via ldflags with git build
var Version = "1"

// Options are the global flags and the commands
type Options struct {
	Config  string `short:"c" long:"config" default:"mechsim.yml" description:"Configuration file"`
	Verbose bool   `short:"v" long:"verbose" description:"Log at debug level"`

	Run     RunCommand     `command:"run" description:"Run the control loop and serve HTTP"`
	Home    HomeCommand    `command:"home" description:"Home one mechanism and exit"`
	Watch   WatchCommand   `command:"watch" description:"Show live telemetry from a running server"`
	Conf    ConfCommand    `command:"conf" description:"Print the effective configuration"`
	Mkconf  MkconfCommand  `command:"mkconf" description:"Write an example configuration file"`
	Version VersionCommand `command:"version" description:"Print the version"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func newLogger() golog.Logger {
	if opts.Verbose {
		return golog.NewDebugLogger("mechsim")
	}
	return golog.NewDevelopmentLogger("mechsim")
}

func loadConfig() (config.Config, error) {
	return config.Load(opts.Config)
}

// RunCommand runs the loop and the HTTP server until interrupted
type RunCommand struct {
	Disabled bool `long:"disabled" description:"Start with the robot disabled"`
}

// Execute implements flags.Commander
func (c *RunCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()
	rig, err := Build(cfg, logger)
	if err != nil {
		return err
	}
	defer rig.Close()
	rig.active = !c.Disabled

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.Addr, Handler: BuildMux(rig)}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	go func() {
		logger.Infow("now listening for requests", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("http server stopped", "error", err)
			stop()
		}
	}()
	if err := rig.Loop.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ConfCommand prints the configuration after defaults, file and environment
type ConfCommand struct{}

// Execute implements flags.Commander
func (c *ConfCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return yml.NewEncoder(os.Stdout).Encode(cfg)
}

// MkconfCommand writes config.Example to the configuration file
type MkconfCommand struct {
	Force bool `short:"f" long:"force" description:"Overwrite an existing file"`
}

// Execute implements flags.Commander
func (c *MkconfCommand) Execute(args []string) error {
	flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if c.Force {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(opts.Config, flag, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return yml.NewEncoder(f).Encode(config.Example())
}

// VersionCommand prints the version
type VersionCommand struct{}

// Execute implements flags.Commander
func (c *VersionCommand) Execute(args []string) error {
	fmt.Printf("mechsim version %v\n", Version)
	return nil
}

func main() {
	parser.LongDescription = `mechsim drives robot mechanisms (motors, servos, flywheels and
servos that home against a hard stop) from a fixed period control loop, and
exposes each one over HTTP under /<name>.  Mechanisms run on the built in
simulator or on Feetech STS serial servos; see mkconf for an example
configuration.`

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
