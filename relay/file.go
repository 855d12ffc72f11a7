package relay

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// File is the relay's subscription file.
type File struct {
	Subscriptions []Subscription `yaml:"subscriptions" json:"subscriptions" jsonschema:"description=Upstream streams to republish"`
}

// Subscription binds one upstream stream to one broker topic.
type Subscription struct {
	// Topic is the broker topic payloads are published to.
	Topic string `yaml:"topic" json:"topic" jsonschema:"required,minLength=1,description=Broker topic that receives every payload"`
	// Path of the stream; empty selects the public path.
	Path string `yaml:"path,omitempty" json:"path,omitempty" jsonschema:"description=Stream path; the public path when empty"`
	// Params are sent as the query string.
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
	// Headers are added to every connection attempt.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	// ReconnectAttempts overrides the client's retry budget when non-zero.
	ReconnectAttempts int `yaml:"reconnect_attempts,omitempty" json:"reconnect_attempts,omitempty" jsonschema:"description=Retry budget; negative disables reconnects"`
	// ReconnectInterval overrides the reconnect delay, e.g. "2s".
	ReconnectInterval string `yaml:"reconnect_interval,omitempty" json:"reconnect_interval,omitempty" jsonschema:"description=Go duration such as 500ms or 2s"`
}

// ErrDuplicateTopic is returned by Validate when two subscriptions publish
// to the same topic.
var ErrDuplicateTopic = errors.New("relay: duplicate topic")

// ParseFile decodes and validates a YAML subscription file.
func ParseFile(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("relay: parse subscription file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// LoadFile reads and parses the subscription file at path.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("relay: read subscription file: %w", err)
	}
	return ParseFile(data)
}

// Validate checks topics and durations.
func (f File) Validate() error {
	seen := make(map[string]struct{}, len(f.Subscriptions))
	for i, s := range f.Subscriptions {
		if s.Topic == "" {
			return fmt.Errorf("relay: subscription %d: topic is required", i)
		}
		if _, ok := seen[s.Topic]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateTopic, s.Topic)
		}
		seen[s.Topic] = struct{}{}
		if _, err := s.interval(); err != nil {
			return fmt.Errorf("relay: subscription %q: %w", s.Topic, err)
		}
	}
	return nil
}

func (s Subscription) interval() (time.Duration, error) {
	if s.ReconnectInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.ReconnectInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid reconnect_interval: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid reconnect_interval: %s is negative", s.ReconnectInterval)
	}
	return d, nil
}

// FileSchema returns the JSON Schema of the subscription file, suitable for
// editor validation of the YAML.
func FileSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	return r.Reflect(new(File))
}
