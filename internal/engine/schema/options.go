package schema

import (
	"encoding/json"
	"fmt"
)

// NormalizeOptions converts a raw option declaration into the canonical
// Option list. Two encodings exist in the wild and both are accepted:
//
//	{"value": "draft", "label": "Draft"}   keyed object (current)
//	["Draft", "draft", "icon-draft"]       positional [label, value, icon] (legacy)
//
// The normalization happens once, here; nothing downstream branches on
// encoding age.
func NormalizeOptions(raw json.RawMessage) ([]Option, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("options must be a list: %w", err)
	}

	options := make([]Option, 0, len(entries))
	for i, entry := range entries {
		opt, err := normalizeOption(entry)
		if err != nil {
			return nil, fmt.Errorf("option %d: %w", i, err)
		}
		options = append(options, opt)
	}
	return options, nil
}

func normalizeOption(raw json.RawMessage) (Option, error) {
	// Keyed object encoding
	var keyed struct {
		Value *string `json:"value"`
		Label string  `json:"label"`
	}
	if err := json.Unmarshal(raw, &keyed); err == nil && keyed.Value != nil {
		return Option{Value: *keyed.Value, Label: keyed.Label}, nil
	}

	// Positional [label, value, icon] encoding; the icon is discarded
	var positional []json.RawMessage
	if err := json.Unmarshal(raw, &positional); err != nil {
		return Option{}, fmt.Errorf("unrecognized option encoding: %s", string(raw))
	}
	if len(positional) < 2 {
		return Option{}, fmt.Errorf("positional option needs label and value")
	}

	var label string
	if err := json.Unmarshal(positional[0], &label); err != nil {
		return Option{}, fmt.Errorf("positional option label: %w", err)
	}
	value, err := scalarString(positional[1])
	if err != nil {
		return Option{}, fmt.Errorf("positional option value: %w", err)
	}
	return Option{Value: value, Label: label}, nil
}

// scalarString renders a JSON scalar as its string form. Legacy option values
// mix strings and bare numbers.
func scalarString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("expected string or number, got %s", string(raw))
}
