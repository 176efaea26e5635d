// Package iodevice registers an "io"-kind device: a handful of named
// channels plus an optional periodic counter writer, standing in for
// whatever real I/O source a program would otherwise wire up (a sensor
// poll, a network feed). It exists to give the filter demo something to
// filter.
package iodevice

import (
	"fmt"

	"github.com/mdufaud/sihd-sub000"
)

func init() {
	sihd.RegisterDeviceFactory("io", build)
}

type channelSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Size int    `yaml:"size"`
}

type counterSpec struct {
	Channel  string `yaml:"channel"`
	Index    int    `yaml:"index"`
	PeriodMs int64  `yaml:"period_ms"`
}

type config struct {
	Channels []channelSpec `yaml:"channels"`
	Counter  *counterSpec  `yaml:"counter"`
}

var typeByName = map[string]sihd.Type{
	"bool":    sihd.TypeBool,
	"int8":    sihd.TypeInt8,
	"int16":   sihd.TypeInt16,
	"int32":   sihd.TypeInt32,
	"int64":   sihd.TypeInt64,
	"uint8":   sihd.TypeUint8,
	"uint16":  sihd.TypeUint16,
	"uint32":  sihd.TypeUint32,
	"uint64":  sihd.TypeUint64,
	"float32": sihd.TypeFloat32,
	"float64": sihd.TypeFloat64,
}

// Device exposes its configured channels and, if configured, drives one of
// them with an incrementing counter on a StepWorker.
type Device struct {
	*sihd.Device

	counter *counterSpec
	worker  *sihd.StepWorker
	n       int64
}

func build(name string, clock sihd.Clock, rawConfig []byte) (sihd.Named, error) {
	var cfg config
	if len(rawConfig) > 0 {
		if err := sihd.DecodeYAML(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("iodevice %q: %w", name, err)
		}
	}

	d := &Device{counter: cfg.Counter}
	d.Device = sihd.NewDevice(name, clock, sihd.DeviceHooks{
		OnStart: d.onStart,
		OnStop:  d.onStop,
	})

	for _, cs := range cfg.Channels {
		t, ok := typeByName[cs.Type]
		if !ok {
			return nil, fmt.Errorf("iodevice %q: unknown channel type %q", name, cs.Type)
		}
		if _, err := d.AddChannel(cs.Name, t, cs.Size); err != nil {
			return nil, fmt.Errorf("iodevice %q: channel %q: %w", name, cs.Name, err)
		}
	}

	return d, nil
}

func (d *Device) onStart(*sihd.Device) error {
	if d.counter == nil {
		return nil
	}
	ch, err := d.FindChannel(d.counter.Channel)
	if err != nil {
		return err
	}
	periodMs := d.counter.PeriodMs
	if periodMs <= 0 {
		periodMs = 1000
	}
	d.worker = sihd.NewStepWorker(d.Name()+"-counter", d.Clock(), 1000.0/float64(periodMs), func() bool {
		d.n++
		val := sihd.Int64Value(ch.Type(), d.n)
		if err := ch.WriteAt(d.counter.Index, val); err != nil {
			return true // keep ticking even if a single write is rejected
		}
		return true
	})
	d.worker.StartWorker()
	return nil
}

func (d *Device) onStop(*sihd.Device) error {
	if d.worker != nil {
		d.worker.StopWorker()
	}
	return nil
}
