package main

import (
	"fmt"
	"os"

	"github.com/mdufaud/sihd-sub000"
	_ "github.com/mdufaud/sihd-sub000/cmd/sihd-filter-demo/iodevice"
)

const DEFAULT_INSTANCE = "sihd-filter-demo"

var mainLog = sihd.NewCompLogger(DEFAULT_INSTANCE)

// Customize the framework for this particular instance. Done before
// invoking sihd.Run, from init() as recommended.
func init() {
	sihd.AddCallerSrcPathPrefixToLogger(0) // strips this command's own directory
	sihd.SetDefaultInstance(DEFAULT_INSTANCE)
	sihd.SetDefaultConfigFile(fmt.Sprintf("%s-config.yaml", DEFAULT_INSTANCE))
	sihd.UpdateBuildInfo(Version, GitInfo)

	// "devfilter" is registered by internal/core's own init(); "io" is
	// registered by this demo's iodevice package, imported above purely for
	// its init() side effect, the same way a metrics generator package
	// registers its task builders.
}

func main() {
	mainLog.Info("Start")
	// See sihd-filter-demo-config.yaml alongside this file for a config that
	// wires an "io" device's counter into a "filter" devfilter: the counter
	// increments a channel once a second, and the filter's bit_and rule
	// writes 1 to an output channel on every odd tick. sihd.Run loads
	// whichever file -config points at, builds the device tree it
	// describes, starts it, and blocks until interrupted.
	os.Exit(sihd.Run())
}
