package internal

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func newTestRuleEngine(t *testing.T, strict bool, rules ...Rule) *RuleEngine {
	t.Helper()
	engine, err := NewRuleEngine(RulesConfig{Rules: rules, Strict: strict})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}
	return engine
}

// TestRuleEngineEvaluate tests that the rule engine correctly evaluates a simple rule.
func TestRuleEngineEvaluate(t *testing.T) {
	engine := newTestRuleEngine(t, false,
		Rule{When: `kind == "comment"`, Emit: EmitList{"autotest.comment.audit"}},
		Rule{When: `kind == "push"`, Emit: EmitList{"autotest.push.audit"}},
	)

	matches := engine.Evaluate(Event{Kind: "comment", Payload: []byte(`{"kind":"comment","repoId":"org/repo"}`)})
	if len(matches) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(matches))
	}
	if matches[0].Topic != "autotest.comment.audit" {
		t.Fatalf("expected topic autotest.comment.audit, got %q", matches[0].Topic)
	}
}

// TestRuleEngineNestedField tests that dotted paths resolve against the flattened payload.
func TestRuleEngineNestedField(t *testing.T) {
	engine := newTestRuleEngine(t, false,
		Rule{When: `comment.flags.force == true`, Emit: EmitList{"autotest.force"}, Drivers: []string{"amqp", "http"}},
	)

	matches := engine.Evaluate(Event{Payload: []byte(`{"kind":"comment","comment":{"body":"#force","flags":{"force":true}}}`)})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if len(matches[0].Drivers) != 2 {
		t.Fatalf("expected 2 drivers, got %d", len(matches[0].Drivers))
	}
}

// TestRuleEngineJSONPath tests that $-prefixed operands are resolved with JSONPath.
func TestRuleEngineJSONPath(t *testing.T) {
	engine := newTestRuleEngine(t, false,
		Rule{When: `$.push.commits > 1`, Emit: EmitList{"autotest.push.batch"}},
	)

	matches := engine.Evaluate(Event{Payload: []byte(`{"kind":"push","push":{"commits":3}}`)})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

// TestRuleEngineQuotedPathIsLiteral tests that dotted text inside string literals is not rewritten.
func TestRuleEngineQuotedPathIsLiteral(t *testing.T) {
	engine := newTestRuleEngine(t, false,
		Rule{When: `repoId == "org.repo"`, Emit: EmitList{"dotted"}},
	)

	matches := engine.Evaluate(Event{Payload: []byte(`{"repoId":"org.repo"}`)})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

// TestRuleEngineMissingField tests that a rule on a missing field does not match.
func TestRuleEngineMissingField(t *testing.T) {
	engine := newTestRuleEngine(t, false, Rule{When: "missing == true", Emit: EmitList{"never"}})

	if matches := engine.Evaluate(Event{Payload: []byte(`{}`)}); len(matches) != 0 {
		t.Fatalf("expected no topics, got %d", len(matches))
	}
}

// TestRuleEngineStrictMissing tests that strict mode does not match a rule with a missing field.
func TestRuleEngineStrictMissing(t *testing.T) {
	engine := newTestRuleEngine(t, true, Rule{When: "missing_field != true", Emit: EmitList{"never"}})

	if matches := engine.Evaluate(Event{Payload: []byte(`{"kind":"push"}`)}); len(matches) != 0 {
		t.Fatalf("expected no matches in strict mode, got %d", len(matches))
	}
}

func TestRuleEngineFunctions(t *testing.T) {
	engine := newTestRuleEngine(t, false,
		Rule{When: `contains(comment.body, "#check")`, Emit: EmitList{"autotest.check"}},
		Rule{When: `hasPrefix(ref, "refs/heads/")`, Emit: EmitList{"autotest.branch", "autotest.branch.audit"}},
	)

	matches := engine.Evaluate(Event{Payload: []byte(`{"ref":"refs/heads/main","comment":{"body":"please #check"}}`)})
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
}

func TestEmitListAcceptsScalarAndList(t *testing.T) {
	var rules []Rule
	content := "- when: a == 1\n  emit: one\n- when: b == 1\n  emit: [two, three]\n"
	if err := yaml.Unmarshal([]byte(content), &rules); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rules[0].Emit) != 1 || rules[0].Emit[0] != "one" {
		t.Fatalf("unexpected scalar emit: %v", rules[0].Emit)
	}
	if len(rules[1].Emit) != 2 {
		t.Fatalf("unexpected list emit: %v", rules[1].Emit)
	}
}
