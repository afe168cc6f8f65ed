package main

import (
	"fmt"
	"strconv"
	"strings"
)

// splitCSV splits a comma-separated list, dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseShape parses dims such as "3,224,224" or "3x224x224". An empty string
// yields no dims.
func parseShape(s string) ([]int, error) {
	parts := splitCSV(strings.ReplaceAll(strings.ToLower(s), "x", ","))
	dims := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid dimension %q", p)
		}
		dims = append(dims, n)
	}
	return dims, nil
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
