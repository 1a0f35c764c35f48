// ABOUTME: Command-line form of engine creation arguments
// ABOUTME: Parses "4,0,4,120" style lists into positional floats
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseArgs reads a comma or space separated list of numbers
func ParseArgs(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})

	args := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", field, err)
		}
		args = append(args, v)
	}
	return args, nil
}
