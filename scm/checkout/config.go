/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package checkout

import (
	"fmt"
	"unicode/utf8"
)

// MaxLabelLength is the longest label, in characters, a step accepts.
const MaxLabelLength = 100

// ErrLabelTooLong is returned when validating a label over MaxLabelLength.
var ErrLabelTooLong = fmt.Errorf("label size exceeds maximum of %d characters", MaxLabelLength)

// Config holds the per-step checkout settings.
type Config struct {
	// Poll requests a post-checkout snapshot so later builds can poll.
	Poll bool `json:"poll" yaml:"poll"`
	// Changelog requests a changelog from the backend.
	Changelog bool `json:"changelog" yaml:"changelog"`
	// Label annotates the graph node that invoked the step.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// DefaultConfig returns the settings a step uses when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Poll:      true,
		Changelog: true,
	}
}

// Validate checks the configuration the way the step form does.
func (c Config) Validate() error {
	return ValidateLabel(c.Label)
}

// ValidateLabel rejects labels longer than MaxLabelLength characters.
func ValidateLabel(label string) error {
	if n := utf8.RuneCountInString(label); n > MaxLabelLength {
		return fmt.Errorf("%w (got %d)", ErrLabelTooLong, n)
	}
	return nil
}

// TruncateLabel returns the first MaxLabelLength characters of label.
// Execution truncates where validation would reject.
func TruncateLabel(label string) string {
	if utf8.RuneCountInString(label) <= MaxLabelLength {
		return label
	}
	return string([]rune(label)[:MaxLabelLength])
}
