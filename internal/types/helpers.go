package types

import (
	"encoding/json"
	"fmt"
)

// ConsoleData contains structured data for console-category entries.
type ConsoleData struct {
	// Args is the serialized argument list of the captured call
	Args []string `json:"args"`
	// Stack is the captured call stack, innermost first (optional)
	Stack []string `json:"stack,omitempty"`
	// Forwarded reports whether the call was passed through to the host
	Forwarded bool `json:"forwarded"`
}

// UIData contains structured data for ui-category entries.
type UIData struct {
	// Regions is the set of highlighted regions described by the entry
	Regions []HighlightRegion `json:"regions"`
}

// SetConsoleData sets the Data field with ConsoleData in a type-safe way.
func (e *LogEntry) SetConsoleData(data ConsoleData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ConsoleData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetConsoleData retrieves ConsoleData from the Data field.
func (e *LogEntry) GetConsoleData() (*ConsoleData, error) {
	var data ConsoleData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ConsoleData: %w", err)
	}
	return &data, nil
}

// SetUIData sets the Data field with UIData in a type-safe way.
func (e *LogEntry) SetUIData(data UIData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert UIData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetUIData retrieves UIData from the Data field.
func (e *LogEntry) GetUIData() (*UIData, error) {
	var data UIData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse UIData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
