package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one scripted run against the engine.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files derive
	// their filename from it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tenant is the tenant the scripted session runs as.
	Tenant string `yaml:"tenant"`

	// Online is the connectivity state at session start.
	Online bool `yaml:"online"`

	// Collections seeds the remote double: endpoint -> records.
	Collections map[string][]SeedRecord `yaml:"collections,omitempty"`

	// Steps is the scripted flow, executed in order.
	Steps []Step `yaml:"steps"`
}

// SeedRecord is one remote record in a seeded collection.
type SeedRecord struct {
	ID      string         `yaml:"id"`
	Tenant  string         `yaml:"tenant,omitempty"`
	Payload map[string]any `yaml:"payload"`
}

// Step is one scripted operation.
type Step struct {
	// Op selects the operation:
	//   - "online" / "offline": flip connectivity
	//   - "write": create or update a record (Store, ID, Payload, Update)
	//   - "complete": complete a sub-item (Store, ID=parent, Sub, Payload)
	//   - "sync": drain the queue once
	//   - "read": read a store and record the visible ids
	//   - "retry_all": requeue every failed mutation
	//   - "fail": script endpoint failures (Endpoint, Times, Status)
	Op string `yaml:"op"`

	Store   string         `yaml:"store,omitempty"`
	ID      string         `yaml:"id,omitempty"`
	Sub     string         `yaml:"sub,omitempty"`
	Update  bool           `yaml:"update,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// Endpoint, Times, and Status script remote failures. Times < 0
	// means fail every call; Status 0 means unreachable.
	Endpoint string `yaml:"endpoint,omitempty"`
	Times    int    `yaml:"times,omitempty"`
	Status   int    `yaml:"status,omitempty"`

	// ExpectError marks a step whose operation must fail; the error
	// class lands in the trace instead of failing the run.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// Step op constants.
const (
	OpOnline   = "online"
	OpOffline  = "offline"
	OpWrite    = "write"
	OpComplete = "complete"
	OpSync     = "sync"
	OpRead     = "read"
	OpRetryAll = "retry_all"
	OpFail     = "fail"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly instead of silently skipping.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Name == "" {
		return nil, fmt.Errorf("scenario is missing a name")
	}
	if scenario.Tenant == "" {
		return nil, fmt.Errorf("scenario %q is missing a tenant", scenario.Name)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	for i, step := range scenario.Steps {
		if !validOp(step.Op) {
			return nil, fmt.Errorf("scenario %q step %d: unknown op %q", scenario.Name, i, step.Op)
		}
	}
	return &scenario, nil
}

func validOp(op string) bool {
	switch op {
	case OpOnline, OpOffline, OpWrite, OpComplete, OpSync, OpRead, OpRetryAll, OpFail:
		return true
	}
	return false
}
