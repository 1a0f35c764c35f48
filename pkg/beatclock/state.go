// ABOUTME: Session state query
// ABOUTME: Emits the oracle's session tempo then quantum on demand
package beatclock

import "github.com/Resonate-Protocol/linkclock-go/pkg/link"

// StateQuery reports the session tempo and quantum when banged.
type StateQuery struct {
	oracle link.Oracle
	out    StateOutputs
}

// NewStateQuery creates a query bound to oracle and out
func NewStateQuery(oracle link.Oracle, out StateOutputs) *StateQuery {
	return &StateQuery{oracle: oracle, out: out}
}

// Bang emits the session tempo, then the quantum
func (q *StateQuery) Bang() {
	q.out.Tempo(q.oracle.SessionTempo())
	q.out.Quantum(q.oracle.Quantum())
}
