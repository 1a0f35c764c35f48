// ABOUTME: Positional argument handling for creation and reset
// ABOUTME: Applies optional parameters in fixed order and warns about extras
package beatclock

import "log"

// param is one optional positional parameter.
type param struct {
	name  string
	apply func(v float64)
}

// applyArgs applies args to params in order, low to high. Params beyond
// len(args) keep their defaults. Extra args are reported with warnFormat
// (which receives the arg count) and otherwise ignored.
func applyArgs(logger *log.Logger, warnFormat string, args []float64, params []param) {
	if len(args) > len(params) {
		logger.Printf(warnFormat, len(args))
	}
	for i, p := range params {
		if i >= len(args) {
			break
		}
		p.apply(args[i])
	}
}
