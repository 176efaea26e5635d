package sihd_util

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// The runner is the main entry point for a sihd instance.
//
// It is responsible for loading the configuration, setting up the logger,
// building the device tree described by the "devices" config section, and
// driving it through its lifecycle. The runner is also responsible for
// handling the shutdown of the instance: it waits for a signal (SIGINT or
// SIGTERM), then stops every device and the scheduler before exiting.
//
// Devices are not known to this package by concrete type — they are built
// from configuration by a DeviceBuilder the caller supplies, since the
// device kinds themselves (internal/core) sit on top of this package and
// cannot be imported back into it.

const (
	CONFIG_FLAG_NAME = "config"
	INSTANCE_DEFAULT = "sihd"

	// Wraparound width for the three flag usage strings below. Unlike the
	// teacher's exported, width-parametrized helper, nothing in this tree
	// ever calls for a width other than this one, so it stays a local
	// constant next to its only call sites instead of a standalone file.
	flagUsageWidth = 58
)

// formatFlagUsage wraps a flag usage message at flagUsageWidth, discarding
// the literal's own line breaks and indentation so a usage string can be
// written as an indented raw string literal next to its flag.Bool/flag.String
// call without that source indentation leaking into -h output.
func formatFlagUsage(usage string) string {
	buf := &bytes.Buffer{}
	lineLen := 0
	for i, word := range strings.Fields(strings.TrimSpace(usage)) {
		if i > 0 {
			if lineLen+len(word)+1 > flagUsageWidth {
				buf.WriteByte('\n')
				lineLen = 0
			} else {
				buf.WriteByte(' ')
				lineLen++
			}
		}
		n, _ := buf.WriteString(word)
		lineLen += n
	}
	return buf.String()
}

// DeviceBuilder constructs one device of the given kind, handing it the
// clock it should run on and its own undecoded raw config. It is normally
// a thin wrapper over a kind registry living above this package (see
// internal/core's device factory registry).
type DeviceBuilder func(kind, name string, clock Clock, rawConfig []byte) (Named, error)

var (
	// The instance name; primed with the package default, overridden by
	// config or the -instance command line arg.
	Instance string = INSTANCE_DEFAULT

	// Build info, normally set via -ldflags by the build.
	Version string
	GitInfo string
)

var (
	versionArg = flag.Bool(
		"version",
		false,
		formatFlagUsage(
			`Print the version and exit`,
		),
	)

	configFileArg = flag.String(
		CONFIG_FLAG_NAME,
		fmt.Sprintf("%s-config.yaml", INSTANCE_DEFAULT),
		`Config file to load`,
	)

	instanceArg = flag.String(
		"instance",
		"",
		formatFlagUsage(
			`Override the "sihd_config.instance" config setting`,
		),
	)
)

var runnerLog = NewCompLogger("runner")

// wiredDevice pairs a built device with the Service interface it should
// expose, if any (a device built from a kind that has no lifecycle hooks
// may not implement Service at all).
type wiredDevice struct {
	named Named
	svc   Service
}

// Run loads the configuration, builds the device tree, starts everything,
// then blocks until a termination signal arrives and shuts everything back
// down. The return value is the exit code of the executable.
func Run(buildDevice DeviceBuilder) int {
	if !flag.Parsed() {
		flag.Parse()
	}

	if *versionArg {
		fmt.Fprintf(os.Stderr, "Version: %s, GitInfo: %s\n", Version, GitInfo)
		return 0
	}

	cfg, deviceSpecs, err := LoadConfig(*configFileArg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
		return 1
	}

	if *instanceArg != "" {
		cfg.Instance = *instanceArg
	}

	if err := SetLogger(cfg.LoggerConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting the logger: %v\n", err)
		return 1
	}
	Instance = cfg.Instance

	// Create a stopped timer to provide timeout support at shutdown. As with
	// a long-running importer, the deferred stop is registered first so it
	// runs last, after every component's own shutdown defer.
	var shutdownTimer *time.Timer
	if cfg.ShutdownMaxWait > 0 {
		shutdownTimer = time.NewTimer(1 * time.Hour)
		shutdownTimer.Stop()
		defer shutdownTimer.Stop()
	}

	scheduler, err := NewScheduler(cfg.SchedulerConfig)
	if err != nil {
		runnerLog.Fatal(err)
	}
	if err := scheduler.Setup(); err != nil {
		runnerLog.Fatal(err)
	}
	if err := scheduler.Init(); err != nil {
		runnerLog.Fatal(err)
	}
	if err := scheduler.Start(); err != nil {
		runnerLog.Fatal(err)
	}
	defer scheduler.Stop()

	root := NewNode(cfg.Instance, nil)

	wired := make([]*wiredDevice, 0, len(deviceSpecs))
	for _, spec := range deviceSpecs {
		rawConfig, err := spec.RawConfig()
		if err != nil {
			runnerLog.Fatalf("device %q: %v", spec.Name, err)
		}
		device, err := buildDevice(spec.Kind, spec.Name, scheduler.Clock(), rawConfig)
		if err != nil {
			runnerLog.Fatalf("device %q: %v", spec.Name, err)
		}

		parent := root
		if spec.Parent != "" {
			found, err := root.Find(spec.Parent)
			if err != nil {
				runnerLog.Fatalf("device %q: parent %q: %v", spec.Name, spec.Parent, err)
			}
			parentNode := nodeOf(found)
			if parentNode == nil {
				runnerLog.Fatalf("device %q: parent %q does not embed a node", spec.Name, spec.Parent)
			}
			parent = parentNode
		}
		if err := parent.AddChild(spec.Name, device); err != nil {
			runnerLog.Fatalf("device %q: %v", spec.Name, err)
		}

		w := &wiredDevice{named: device}
		if svc, ok := device.(Service); ok {
			w.svc = svc
		}
		wired = append(wired, w)
	}

	if err := root.Resolve(); err != nil {
		runnerLog.Fatalf("unresolved link: %v", err)
	}

	for _, w := range wired {
		if w.svc == nil {
			continue
		}
		if err := w.svc.Setup(); err != nil {
			runnerLog.Fatalf("device %q: setup: %v", w.named.Name(), err)
		}
		if err := w.svc.Init(); err != nil {
			runnerLog.Fatalf("device %q: init: %v", w.named.Name(), err)
		}
		if err := w.svc.Start(); err != nil {
			runnerLog.Fatalf("device %q: start: %v", w.named.Name(), err)
		}
	}
	defer func() {
		for i := len(wired) - 1; i >= 0; i-- {
			if wired[i].svc == nil {
				continue
			}
			if err := wired[i].svc.Stop(); err != nil {
				runnerLog.Errorf("device %q: stop: %v", wired[i].named.Name(), err)
			}
		}
	}()

	runnerLog.Infof("Instance: %s, devices: %d", Instance, len(wired))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	if cfg.ShutdownMaxWait == 0 {
		runnerLog.Fatalf("%s signal received, force exit", sig)
	} else {
		runnerLog.Warnf("%s signal received, shutting down", sig)
	}

	if shutdownTimer != nil {
		go func() {
			shutdownTimer.Reset(cfg.ShutdownMaxWait)
			<-shutdownTimer.C
			runnerLog.Fatalf("shutdown timed out after %s, force exit", cfg.ShutdownMaxWait)
		}()
	}

	return 0
}
