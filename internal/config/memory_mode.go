package config

import (
	"fmt"
	"strings"
)

const (
	MemoryModeMinimum = "minimum"
	MemoryModeMaximum = "maximum"
)

func NormalizeMemoryMode(raw string) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(raw))
	if mode == "" {
		mode = MemoryModeMaximum
	}
	switch mode {
	case MemoryModeMinimum, MemoryModeMaximum:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid memory mode %q (expected %s|%s)", raw, MemoryModeMinimum, MemoryModeMaximum)
	}
}
