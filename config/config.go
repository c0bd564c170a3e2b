package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/taktv6/bgpdecode/packet"
)

// Config is the decoder configuration file
type Config struct {
	Decoder struct {
		ASNWidth           int    `yaml:"asnWidth"`
		AddPath            string `yaml:"addPath"`
		FlowSpecLegacyIPv6 *bool  `yaml:"flowSpecLegacyIPv6"`
	} `yaml:"decoder"`
}

// Load reads the configuration file filename and returns the decoder options it describes
func Load(filename string) (packet.Options, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return packet.Options{}, errors.Wrap(err, "Unable to read config")
	}

	return Parse(data)
}

// Parse returns the decoder options described by the YAML document data. Settings
// not present keep their default.
func Parse(data []byte) (packet.Options, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return packet.Options{}, errors.Wrap(err, "Unable to parse config")
	}

	return config.Options()
}

func (c *Config) Options() (packet.Options, error) {
	opts := packet.DefaultOptions()

	switch c.Decoder.ASNWidth {
	case 0, 2, 4:
		opts.ASNWidth = c.Decoder.ASNWidth
	default:
		return opts, errors.Errorf("Invalid asnWidth %d, expected 0, 2 or 4", c.Decoder.ASNWidth)
	}

	switch c.Decoder.AddPath {
	case "", "auto":
		opts.AddPath = packet.AddPathAuto
	case "never":
		opts.AddPath = packet.AddPathNever
	case "always":
		opts.AddPath = packet.AddPathAlways
	default:
		return opts, errors.Errorf("Invalid addPath %q, expected auto, never or always", c.Decoder.AddPath)
	}

	if c.Decoder.FlowSpecLegacyIPv6 != nil {
		opts.FlowSpecLegacyIPv6 = *c.Decoder.FlowSpecLegacyIPv6
	}

	return opts, nil
}
