package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalJSON accepts run_id as a number or a numeric string, since shell
// dispatchers often quote it.
func (e *DispatchEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Repo          string      `json:"repo"`
		RunID         json.Number `json:"run_id"`
		Workflow      string      `json:"workflow"`
		CorrelationID string      `json:"correlation_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := parseRunID(raw.RunID.String())
	if err != nil {
		return err
	}
	*e = DispatchEntry{Repo: raw.Repo, RunID: id, Workflow: raw.Workflow, CorrelationID: raw.CorrelationID}
	return nil
}

// UnmarshalYAML accepts run_id as an integer or a quoted integer.
func (e *DispatchEntry) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Repo          string `yaml:"repo"`
		RunID         string `yaml:"run_id"`
		Workflow      string `yaml:"workflow"`
		CorrelationID string `yaml:"correlation_id"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	id, err := parseRunID(raw.RunID)
	if err != nil {
		return err
	}
	*e = DispatchEntry{Repo: raw.Repo, RunID: id, Workflow: raw.Workflow, CorrelationID: raw.CorrelationID}
	return nil
}

func parseRunID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("run_id %q is not a run id", s)
	}
	return id, nil
}
