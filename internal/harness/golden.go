package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario, checks its Expect clause and
// compares the rendered plan plus validation report against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, err := range result.Check() {
		t.Errorf("scenario %s: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, []byte(result.Render()))
	return result
}
