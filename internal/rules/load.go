package rules

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFile reads custom rule overrides from a JSON file: an ordered
// array of {"pattern": ..., "category": ...} objects. A missing file
// is not an error; custom rules are optional.
func LoadFile(path string) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var rs []Rule
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return rs, nil
}

// FromFile builds a Categorizer with the overrides in path (if any)
// layered over the built-in table.
func FromFile(path string) (*Categorizer, error) {
	custom, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return New(custom)
}
