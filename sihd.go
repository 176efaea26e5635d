// The public face of sihd for the users of this module.

package sihd

import (
	"flag"

	"github.com/sirupsen/logrus"

	sihd_core "github.com/mdufaud/sihd-sub000/internal/core"
	sihd_util "github.com/mdufaud/sihd-sub000/internal/util"
)

// Clock, time and waiting.
type Clock = sihd_util.Clock
type Timestamp = sihd_util.Timestamp
type Waitable = sihd_util.Waitable

func NewSystemClock() Clock         { return sihd_util.NewSystemClock() }
func NewSteadyClock() Clock         { return sihd_util.NewSteadyClock() }
func NewWaitable(c Clock) *Waitable { return sihd_util.NewWaitable(c) }

// Scheduling.
type Task = sihd_util.Task
type Scheduler = sihd_util.Scheduler
type SchedulerConfig = sihd_util.SchedulerConfig

type TaskPayload = sihd_util.TaskPayload

func NewTask(id string, payload TaskPayload) *Task          { return sihd_util.NewTask(id, payload) }
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) { return sihd_util.NewScheduler(cfg) }
func DefaultSchedulerConfig() *SchedulerConfig              { return sihd_util.DefaultSchedulerConfig() }

// Service lifecycle.
type Service = sihd_util.Service
type ServiceState = sihd_util.ServiceState
type Hooks = sihd_util.Hooks
type BaseService = sihd_util.BaseService

// Tree.
type Named = sihd_util.Named
type Node = sihd_util.Node

func NewNode(name string, self Named) *Node { return sihd_util.NewNode(name, self) }

// Values and arrays, the element storage behind a Channel.
type Type = sihd_util.Type
type Value = sihd_util.Value
type Array = sihd_util.Array
type ArrayView = sihd_util.ArrayView

func BoolValue(v bool) Value                { return sihd_util.BoolValue(v) }
func Int64Value(t Type, v int64) Value      { return sihd_util.Int64Value(t, v) }
func Uint64Value(t Type, v uint64) Value    { return sihd_util.Uint64Value(t, v) }
func Float64Value(t Type, v float64) Value  { return sihd_util.Float64Value(t, v) }
func ParseAnyValue(s string) (Value, error) { return sihd_util.ParseAnyValue(s) }

const (
	TypeBool    = sihd_util.TypeBool
	TypeInt8    = sihd_util.TypeInt8
	TypeInt16   = sihd_util.TypeInt16
	TypeInt32   = sihd_util.TypeInt32
	TypeInt64   = sihd_util.TypeInt64
	TypeUint8   = sihd_util.TypeUint8
	TypeUint16  = sihd_util.TypeUint16
	TypeUint32  = sihd_util.TypeUint32
	TypeUint64  = sihd_util.TypeUint64
	TypeFloat32 = sihd_util.TypeFloat32
	TypeFloat64 = sihd_util.TypeFloat64
)

// Worker/StepWorker: a Service-less goroutine wrapper, for a device that
// needs to drive itself on a timer outside of Scheduler's Task model.
type Worker = sihd_util.Worker
type StepWorker = sihd_util.StepWorker
type StepPayload = sihd_util.StepPayload

func NewWorker(name string, runnable sihd_util.Runnable) *Worker {
	return sihd_util.NewWorker(name, runnable)
}
func NewStepWorker(name string, clock Clock, frequencyHz float64, payload StepPayload) *StepWorker {
	return sihd_util.NewStepWorker(name, clock, frequencyHz, payload)
}

// Dataflow graph: Channel, Device, DevFilter.
type Channel = sihd_core.Channel
type Handler = sihd_core.Handler
type HandlerFunc = sihd_core.HandlerFunc
type Device = sihd_core.Device
type DeviceHooks = sihd_core.DeviceHooks
type DevFilter = sihd_core.DevFilter
type Rule = sihd_core.Rule
type MatchOp = sihd_core.MatchOp

const (
	MatchEqual     = sihd_core.MatchEqual
	MatchLess      = sihd_core.MatchLess
	MatchLessEq    = sihd_core.MatchLessEq
	MatchGreater   = sihd_core.MatchGreater
	MatchGreaterEq = sihd_core.MatchGreaterEq
	MatchBitAnd    = sihd_core.MatchBitAnd
	MatchBitOr     = sihd_core.MatchBitOr
	MatchBitXor    = sihd_core.MatchBitXor
)

func NewDevice(name string, clock Clock, hooks DeviceHooks) *Device {
	return sihd_core.NewDevice(name, clock, hooks)
}
func NewDevFilter(name string, clock Clock) *DevFilter { return sihd_core.NewDevFilter(name, clock) }

// Device factories: devices are normally built by kind from configuration
// rather than constructed directly; RegisterDeviceFactory lets a program
// add its own device kinds alongside the built-in "devfilter" one.
type DeviceFactory = sihd_core.DeviceFactory

func RegisterDeviceFactory(kind string, factory DeviceFactory) {
	sihd_core.RegisterDeviceFactory(kind, factory)
}
func BuildDevice(kind, name string, clock Clock, rawConfig []byte) (Named, error) {
	return sihd_core.BuildDevice(kind, name, clock, rawConfig)
}

// Process and Poll, for shelling out to and multiplexing external commands.
type Process = sihd_util.Process
type Poll = sihd_util.Poll
type PollConfig = sihd_util.PollConfig

func NewProcess(name string, args ...string) *Process { return sihd_util.NewProcess(name, args...) }
func NewPoll() *Poll                                  { return sihd_util.NewPoll() }

// Configuration.
type Config = sihd_util.Config
type DeviceSpec = sihd_util.DeviceSpec

func DefaultConfig() *Config { return sihd_util.DefaultConfig() }
func LoadConfig(cfgFile string, buf []byte) (*Config, []DeviceSpec, error) {
	return sihd_util.LoadConfig(cfgFile, buf)
}

// The instance should be primed w/ the desired default *before* invoking
// the runner, typically from an init(). Its value may be modified via
// config and command line args.
func SetDefaultInstance(instance string) {
	sihd_util.Instance = instance
}

// Set the config flag default value, typically to
// <default_instance>-config.yaml:
func SetDefaultConfigFile(filePath string) {
	if configFlag := flag.Lookup(sihd_util.CONFIG_FLAG_NAME); configFlag != nil {
		if err := configFlag.Value.Set(filePath); err == nil {
			configFlag.DefValue = filePath
		}
	}
}

// Update build info: version (semver) and git info. This function should be
// called *before* the runner is invoked, typically from an init() function.
func UpdateBuildInfo(version, gitInfo string) {
	sihd_util.Version = version
	sihd_util.GitInfo = gitInfo
}

// Get the instance, which is typically set from the command line or config.
func GetInstance() string {
	return sihd_util.Instance
}

// The root logger. Needed only for tests where the logger is captured, its
// actual type is obscured.
func GetRootLogger() any { return sihd_util.RootLogger }

// Create new component logger w/ comp=compName field:
func NewCompLogger(comp string) *logrus.Entry {
	return sihd_util.NewCompLogger(comp)
}

// When logging files, the log file name is derived from the file path
// typically relative to the module root dir. The logger maintains a list of
// prefixes to strip and the following function will add the caller's module
// path to it. The latter is inferred from the caller's file path, going up
// N dirs. Typically the call is made from main.init() so the parameter is 0
// (assuming that main.go is at the root dir of the module).
func AddCallerSrcPathPrefixToLogger(upNDirs int) {
	// skip = 1 below to base the caller's path on the caller of this function.
	sihd_util.AddCallerSrcPathPrefixToLogger(upNDirs, 1)
}

// Run loads the configuration, builds the device tree it describes (via the
// registered device factories — see RegisterDeviceFactory), starts it, then
// blocks until the process is interrupted via a signal, or until
// initialization fails. Its return value should be used as the process exit
// status.
func Run() int {
	return sihd_util.Run(sihd_core.BuildDevice)
}
