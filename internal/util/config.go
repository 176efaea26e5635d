// Configuration.
//
// The configuration is loaded from a YAML file, with the following
// top-level structure:
//
//  sihd_config:
//    instance: sihd
//    shutdown_max_wait: 5s
//    log_config:
//      ...
//    scheduler_config:
//      ...
//    poll_config:
//      ...
//  devices:
//    - kind: devfilter
//      name: filter1
//      parent: ""
//      config:
//        rules:
//          - op: equal
//            rule: "in=/io/in;out=/io/out;trigger=2:42"
//
// The "sihd_config" section maps to the Config structure defined here.
// The "devices" section is a list of named device specs; each is handed
// off (kind + its own "config" sub-document, undecoded) to the device
// factory registry in internal/core to be instantiated.

package sihd_util

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SIHD_CONFIG_SECTION_NAME = "sihd_config"
	DEVICES_SECTION_NAME     = "devices"

	CONFIG_SHUTDOWN_MAX_WAIT_DEFAULT = 5 * time.Second
)

type Config struct {
	// The instance name, default "sihd". It may be overridden by -instance
	// command line arg.
	Instance string `yaml:"instance"`

	// How long to wait for a graceful shutdown. A negative value signifies
	// indefinite wait and 0 stands for no wait at all (exit abruptly).
	ShutdownMaxWait time.Duration `yaml:"shutdown_max_wait"`

	LoggerConfig    *LoggerConfig    `yaml:"log_config"`
	SchedulerConfig *SchedulerConfig `yaml:"scheduler_config"`
	PollConfig      *PollConfig      `yaml:"poll_config"`
}

func DefaultConfig() *Config {
	return &Config{
		Instance:        Instance,
		ShutdownMaxWait: CONFIG_SHUTDOWN_MAX_WAIT_DEFAULT,
		LoggerConfig:    DefaultLoggerConfig(),
		SchedulerConfig: DefaultSchedulerConfig(),
		PollConfig:      DefaultPollConfig(),
	}
}

// DeviceSpec names one device to instantiate: its factory kind, its name
// and parent in the Node tree, and its own kind-specific configuration,
// left undecoded (a yaml.Node) until handed to the matching factory.
type DeviceSpec struct {
	Kind   string    `yaml:"kind"`
	Name   string    `yaml:"name"`
	Parent string    `yaml:"parent"`
	Config yaml.Node `yaml:"config"`
}

// RawConfig re-marshals the device's own config sub-document back into
// bytes, for DeviceFactory implementations to unmarshal into their own
// kind-specific struct.
func (d *DeviceSpec) RawConfig() ([]byte, error) {
	if d.Config.Kind == 0 {
		return nil, nil
	}
	return yaml.Marshal(&d.Config)
}

// DecodeYAML is a thin wrapper so internal/core can decode a device's raw
// config bytes without importing gopkg.in/yaml.v3 itself.
func DecodeYAML(raw []byte, out any) error {
	return yaml.Unmarshal(raw, out)
}

// LoadConfig loads the configuration from the specified YAML file (or
// buf, pre-populated for testing), returning the decoded "sihd_config"
// section and the "devices" section.
func LoadConfig(cfgFile string, buf []byte) (*Config, []DeviceSpec, error) {
	if buf == nil {
		f, err := os.Open(cfgFile)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		buf, err = io.ReadAll(f)
		if err != nil {
			return nil, nil, fmt.Errorf("file: %q: %v", cfgFile, err)
		}
	}

	docNode := yaml.Node{}
	if err := yaml.Unmarshal(buf, &docNode); err != nil {
		return nil, nil, fmt.Errorf("file: %q: %v", cfgFile, err)
	}

	cfg := DefaultConfig()
	var devices []DeviceSpec

	if docNode.Kind == yaml.DocumentNode && len(docNode.Content) > 0 {
		rootNode := docNode.Content[0]
		if rootNode.Kind != yaml.MappingNode {
			return nil, nil, fmt.Errorf("file: %q: invalid YAML root node %q", cfgFile, rootNode.Tag)
		}
		var sectionName string
		for _, n := range rootNode.Content {
			if n.Kind == yaml.ScalarNode && sectionName == "" {
				sectionName = n.Value
				continue
			}
			switch sectionName {
			case SIHD_CONFIG_SECTION_NAME:
				if err := n.Decode(cfg); err != nil {
					return nil, nil, fmt.Errorf("file: %q: %v", cfgFile, err)
				}
			case DEVICES_SECTION_NAME:
				if err := n.Decode(&devices); err != nil {
					return nil, nil, fmt.Errorf("file: %q: %v", cfgFile, err)
				}
			}
			sectionName = ""
		}
	}

	return cfg, devices, nil
}
