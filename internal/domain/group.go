package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DecodeGroups decodes and validates an Alertmanager v2 alert group list.
// Params: JSON document with one array of groups.
// Returns: validated groups or decode/validation error.
func DecodeGroups(raw []byte) ([]RawGroup, error) {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	return DecodeGroupsReader(json.NewDecoder(bytes.NewReader(payload)))
}

// DecodeGroupsReader decodes one group list from stream and rejects trailing tokens.
// Params: json decoder positioned at the group array.
// Returns: validated groups or decode/validation error.
func DecodeGroupsReader(decoder *json.Decoder) ([]RawGroup, error) {
	var groups []RawGroup
	if err := decoder.Decode(&groups); err != nil {
		return nil, fmt.Errorf("decode alert groups: %w", err)
	}
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != io.EOF {
		if err != nil {
			return nil, fmt.Errorf("decode trailing json: %w", err)
		}
		return nil, errors.New("unexpected trailing json tokens")
	}
	if groups == nil {
		groups = []RawGroup{}
	}
	for i := range groups {
		if err := groups[i].Validate(); err != nil {
			return nil, fmt.Errorf("group[%d]: %w", i, err)
		}
	}
	return groups, nil
}

// Validate checks group labels and alert labels for empty names.
// Params: decoded group.
// Returns: validation error when contract is violated.
func (g *RawGroup) Validate() error {
	for name := range g.Labels {
		if strings.TrimSpace(string(name)) == "" {
			return errors.New("group label name must not be empty")
		}
	}
	for i := range g.Alerts {
		if err := g.Alerts[i].Validate(); err != nil {
			return fmt.Errorf("alert[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks alert label names.
// Params: decoded alert.
// Returns: validation error for empty label names.
func (a *Alert) Validate() error {
	for name := range a.Labels {
		if strings.TrimSpace(string(name)) == "" {
			return errors.New("label name must not be empty")
		}
	}
	return nil
}
