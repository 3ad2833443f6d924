package routing

import (
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
)

// Match is one rule reached for an alert and the scenario it was reached
// from.
type Match struct {
	ScenarioID string
	Rule       *RuleNode
}

// Evaluate walks every scenario the alert enters. It returns the rules whose
// whole condition chain passed and the scenarios that reached at least one
// rule. A condition that cannot be evaluated prunes only its own branch; all
// such failures come back joined next to the matches.
func Evaluate(g *Graph, a event.Alert) ([]Match, []string, error) {
	w := &walker{g: g, ctx: NewEvalContext(a)}
	var scenarios []string
	for _, sc := range g.Scenarios() {
		ok, err := sc.Evaluate(w.ctx)
		if err != nil {
			w.fail(sc, err)
			continue
		}
		if !ok {
			continue
		}
		reached := len(w.matches)
		w.descend(sc.ID(), sc.ID())
		if len(w.matches) > reached {
			scenarios = append(scenarios, sc.ID())
		}
	}
	return w.matches, scenarios, errors.Join(w.errs...)
}

type walker struct {
	g       *Graph
	ctx     *EvalContext
	matches []Match
	errs    []error
}

func (w *walker) descend(scenarioID, parentID string) {
	for _, n := range w.g.Children(parentID) {
		ok, err := n.Evaluate(w.ctx)
		if err != nil {
			w.fail(n, err)
			continue
		}
		if !ok {
			continue
		}
		if rule, leaf := n.(*RuleNode); leaf {
			w.matches = append(w.matches, Match{ScenarioID: scenarioID, Rule: rule})
			continue
		}
		w.descend(scenarioID, n.ID())
	}
}

func (w *walker) fail(n Node, err error) {
	w.errs = append(w.errs, fmt.Errorf("%s %s: %w", n.Kind(), n.ID(), err))
}
