package trafficgen

import (
	"fmt"
	"os"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// Request is a full traffic generation request as submitted by the user.
type Request struct {
	Mode           GenerationMode  `yaml:"mode" json:"mode" default:"rate"`
	Streams        []Stream        `yaml:"streams" json:"streams"`
	StreamSettings []StreamSetting `yaml:"stream_settings" json:"stream_settings"`
}

// LoadRequest reads a request from a YAML file. Defaults are applied
// before decoding so the file only needs to state what differs.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}

	req := &Request{}
	defaults.SetDefaults(req)
	if err := yaml.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("failed to parse request file: %w", err)
	}
	return req, nil
}

// Validate runs the request through the generation gate for the given
// target hardware.
func (r *Request) Validate(isTofino2 bool) error {
	return ValidateRequest(r.Streams, r.StreamSettings, r.Mode, isTofino2)
}
