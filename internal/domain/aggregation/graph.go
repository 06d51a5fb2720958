package aggregation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kyodo-analytics/finmap/internal/domain/chart"
)

// ErrFormulaCycle is returned when the formula set cannot be ordered because
// targets depend on each other, directly or through intermediaries.
var ErrFormulaCycle = errors.New("formula dependency cycle")

// orderFormulas sorts formulas so every formula runs after the formulas whose
// targets it consumes. Within the same dependency rank, higher priority runs
// first and ties fall back to target code, keeping evaluation deterministic.
func orderFormulas(formulas []*chart.AccountFormula) ([]*chart.AccountFormula, error) {
	byTarget := make(map[string]*chart.AccountFormula, len(formulas))
	for _, f := range formulas {
		byTarget[f.TargetCode] = f
	}

	// dependency edges: component target -> dependent formula
	indegree := make(map[string]int, len(formulas))
	dependents := make(map[string][]string)
	for _, f := range formulas {
		indegree[f.TargetCode] += 0
		for _, comp := range f.Components {
			// a self-referential component forms a one-node cycle
			if _, ok := byTarget[comp]; ok {
				dependents[comp] = append(dependents[comp], f.TargetCode)
				indegree[f.TargetCode]++
			}
		}
	}

	ready := make([]string, 0, len(formulas))
	for code, deg := range indegree {
		if deg == 0 {
			ready = append(ready, code)
		}
	}

	ordered := make([]*chart.AccountFormula, 0, len(formulas))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			a, b := byTarget[ready[i]], byTarget[ready[j]]
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			return a.TargetCode < b.TargetCode
		})

		code := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byTarget[code])

		for _, dep := range dependents[code] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(ordered) != len(formulas) {
		var stuck []string
		for code, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, code)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w involving targets %v", ErrFormulaCycle, stuck)
	}
	return ordered, nil
}
