package routing_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/gyaneshwarpardhi/opsalert/internal/condition"
	"github.com/gyaneshwarpardhi/opsalert/internal/config"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/routing"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

var seller = user.User{ID: "u_sales", Name: "Sam", Email: "sam@example.com", Role: user.RoleSales, ManagerID: "u_mgr"}

func defaultGraph(t *testing.T) *routing.Graph {
	t.Helper()
	rc, err := config.DefaultRouting()
	if err != nil {
		t.Fatalf("DefaultRouting error: %v", err)
	}
	g, err := routing.Build(rc)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return g
}

func ruleIDs(matches []routing.Match) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Rule.ID())
	}
	sort.Strings(ids)
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEvaluate_RecordSale(t *testing.T) {
	g := defaultGraph(t)
	sale, err := event.NewBusinessHighValueSale(event.HighValueSale{
		SalesUser: seller, Client: event.ClientRef{ID: "c1"}, Sale: event.SaleRef{ID: "s1"},
		SaleAmount: 75000, IsRecordHigh: true, ThresholdAmount: 10000,
	}, event.Meta{})
	if err != nil {
		t.Fatalf("NewBusinessHighValueSale: %v", err)
	}
	matches, scenarios, err := routing.Evaluate(g, sale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"admins_always", "managers_on_severe", "record_sale_audience", "subject_and_manager"}
	if got := ruleIDs(matches); !equalStrings(got, want) {
		t.Errorf("rules = %v, want %v", got, want)
	}
	if len(scenarios) != 3 {
		t.Errorf("expected 3 scenarios, got %v", scenarios)
	}
}

func TestEvaluate_ConditionPrune(t *testing.T) {
	g := defaultGraph(t)
	sale, err := event.NewBusinessHighValueSale(event.HighValueSale{
		SalesUser: seller, Client: event.ClientRef{ID: "c1"}, Sale: event.SaleRef{ID: "s1"},
		SaleAmount: 12000, ThresholdAmount: 10000,
	}, event.Meta{})
	if err != nil {
		t.Fatalf("NewBusinessHighValueSale: %v", err)
	}
	matches, _, err := routing.Evaluate(g, sale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"admins_always", "subject_and_manager"}
	if got := ruleIDs(matches); !equalStrings(got, want) {
		t.Errorf("rules = %v, want %v", got, want)
	}
}

func TestEvaluate_OverdueCollections(t *testing.T) {
	g := defaultGraph(t)
	overdue, err := event.NewBusinessPaymentOverdue(event.PaymentOverdue{
		Payment: event.PaymentRef{ID: "p1"}, Client: event.ClientRef{ID: "c1"}, Amount: 900, DaysOverdue: 45,
	}, event.Meta{})
	if err != nil {
		t.Fatalf("NewBusinessPaymentOverdue: %v", err)
	}
	matches, _, err := routing.Evaluate(g, overdue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"admins_always", "overdue_collections_team"}
	if got := ruleIDs(matches); !equalStrings(got, want) {
		t.Errorf("rules = %v, want %v", got, want)
	}
}

func TestEvaluate_DisabledScenario(t *testing.T) {
	rc := config.RoutingConf{Scenarios: []config.Scenario{{
		ID:      "sc_disabled",
		Enabled: false,
		Children: []config.NodeRef{
			{Rule: &config.RuleDef{ID: "rule_never", Roles: []string{"admin"}}},
		},
	}}}
	g, err := routing.Build(rc)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	db, err := event.NewSystemDatabaseFailure(event.DatabaseFailure{Connection: "pgsql", ErrorMessage: "x"}, event.Meta{})
	if err != nil {
		t.Fatalf("NewSystemDatabaseFailure: %v", err)
	}
	_, scenarios, _ := routing.Evaluate(g, db)
	if len(scenarios) != 0 {
		t.Errorf("disabled scenario should not match, got %v", scenarios)
	}
}

func TestEvaluate_BrokenConditionPrunesOnlyItsBranch(t *testing.T) {
	rc := config.RoutingConf{Scenarios: []config.Scenario{{
		ID:         "sc_system",
		Enabled:    true,
		Categories: []string{"System"},
		Children: []config.NodeRef{
			{Condition: &config.ConditionDef{
				ID:         "cond_missing",
				Expression: "payload.not_a_field > 3",
				Children:   []config.NodeRef{{Rule: &config.RuleDef{ID: "rule_unreached", Roles: []string{"manager"}}}},
			}},
			{Rule: &config.RuleDef{ID: "rule_admins", Roles: []string{"admin"}}},
		},
	}}}
	g, err := routing.Build(rc)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	db, err := event.NewSystemDatabaseFailure(event.DatabaseFailure{Connection: "pgsql", ErrorMessage: "x"}, event.Meta{})
	if err != nil {
		t.Fatalf("NewSystemDatabaseFailure: %v", err)
	}
	matches, _, err := routing.Evaluate(g, db)
	if !errors.Is(err, condition.ErrUnknownField) {
		t.Fatalf("err = %v, want ErrUnknownField", err)
	}
	if got := ruleIDs(matches); !equalStrings(got, []string{"rule_admins"}) {
		t.Errorf("rules = %v, want [rule_admins]", got)
	}
}

func TestBuild_RejectsBadExpression(t *testing.T) {
	rc := config.RoutingConf{Scenarios: []config.Scenario{{
		ID:      "sc",
		Enabled: true,
		Children: []config.NodeRef{{Condition: &config.ConditionDef{
			ID: "bad", Expression: "alert.severity in",
		}}},
	}}}
	_, err := routing.Build(rc)
	var syn *condition.SyntaxError
	if !errors.As(err, &syn) {
		t.Fatalf("err = %v, want a SyntaxError", err)
	}
}

func TestRouter_SwapKeepsPreviousOnError(t *testing.T) {
	rc, err := config.DefaultRouting()
	if err != nil {
		t.Fatalf("DefaultRouting error: %v", err)
	}
	r, err := routing.NewRouter(rc)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}
	before := r.Graph()

	bad := config.RoutingConf{Scenarios: []config.Scenario{{
		ID: "sc", Enabled: true,
		Children: []config.NodeRef{{Rule: &config.RuleDef{ID: "r", Roles: []string{"janitor"}}}},
	}}}
	if err := r.Swap(bad); err == nil {
		t.Fatalf("expected swap to fail on unknown role")
	}
	if r.Graph() != before {
		t.Errorf("graph changed after failed swap")
	}
	if len(r.Rules().Scenarios) != len(rc.Scenarios) {
		t.Errorf("rules changed after failed swap")
	}
}

func TestBuild_DefaultTableShape(t *testing.T) {
	g := defaultGraph(t)
	if g.RuleCount() != 9 {
		t.Errorf("RuleCount = %d, want 9", g.RuleCount())
	}
	var got []string
	for _, r := range g.Roles() {
		got = append(got, string(r))
	}
	want := []string{"admin", "collections", "finance", "manager", "sales"}
	if !equalStrings(got, want) {
		t.Errorf("Roles = %v, want %v", got, want)
	}
	if n := g.Node("sale_is_record_high"); n == nil || n.Kind() != routing.NodeKindCondition {
		t.Errorf("expected sale_is_record_high to be a condition node, got %v", n)
	}
}

func TestBuild_RejectsBadRules(t *testing.T) {
	cases := map[string]config.RoutingConf{
		"duplicate id": {Scenarios: []config.Scenario{
			{ID: "a", Enabled: true, Children: []config.NodeRef{{Rule: &config.RuleDef{ID: "r", Roles: []string{"admin"}}}}},
			{ID: "b", Enabled: true, Children: []config.NodeRef{{Rule: &config.RuleDef{ID: "r", Roles: []string{"admin"}}}}},
		}},
		"unknown subject": {Scenarios: []config.Scenario{
			{ID: "a", Enabled: true, Children: []config.NodeRef{{Rule: &config.RuleDef{ID: "r", Subjects: []string{"grandmanager"}}}}},
		}},
		"empty rule": {Scenarios: []config.Scenario{
			{ID: "a", Enabled: true, Children: []config.NodeRef{{Rule: &config.RuleDef{ID: "r"}}}},
		}},
		"empty node": {Scenarios: []config.Scenario{
			{ID: "a", Enabled: true, Children: []config.NodeRef{{}}},
		}},
	}
	for name, rc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := routing.Build(rc); err == nil {
				t.Errorf("expected Build to fail")
			}
		})
	}
}
