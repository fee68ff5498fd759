package internal

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
	"gopkg.in/yaml.v3"
)

// Rule emits extra topics for targets matching a govaluate expression.
type Rule struct {
	When    string   `yaml:"when"`
	Emit    EmitList `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// EmitList accepts either a single topic or a list of topics.
type EmitList []string

func (e *EmitList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*e = EmitList{node.Value}
		return nil
	case yaml.SequenceNode:
		var topics []string
		if err := node.Decode(&topics); err != nil {
			return err
		}
		*e = EmitList(topics)
		return nil
	default:
		return fmt.Errorf("emit must be a string or list of strings")
	}
}

// RuleMatch is a topic selected for an event, optionally pinned to drivers.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	emit    EmitList
	drivers []string
	expr    *govaluate.EvaluableExpression
	paths   map[string]string
}

type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger *log.Logger
}

// pathOperand matches dotted/indexed field paths and $-prefixed JSONPath operands.
var pathOperand = regexp.MustCompile(`\$[A-Za-z0-9_.\[\]*]*|[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*|\[\d+\])+`)

var ruleFunctions = map[string]govaluate.ExpressionFunction{
	"contains": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("contains expects 2 arguments")
		}
		switch typed := args[0].(type) {
		case string:
			needle, _ := args[1].(string)
			return strings.Contains(typed, needle), nil
		case []interface{}:
			for _, item := range typed {
				if item == args[1] {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, nil
		}
	},
	"hasPrefix": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("hasPrefix expects 2 arguments")
		}
		value, _ := args[0].(string)
		prefix, _ := args[1].(string)
		return strings.HasPrefix(value, prefix), nil
	},
}

func NewRuleEngine(cfg RulesConfig) (*RuleEngine, error) {
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		rewritten, paths := rewritePaths(rule.When)
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, ruleFunctions)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, compiledRule{emit: rule.Emit, drivers: rule.Drivers, expr: expr, paths: paths})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &RuleEngine{rules: rules, strict: cfg.Strict, logger: logger}, nil
}

// Evaluate returns the topics emitted by every rule matching the event payload.
func (r *RuleEngine) Evaluate(event Event) []RuleMatch {
	return r.EvaluateWithLogger(event, r.logger)
}

func (r *RuleEngine) EvaluateWithLogger(event Event, logger *log.Logger) []RuleMatch {
	if r == nil || len(r.rules) == 0 {
		return nil
	}

	var object interface{}
	if err := json.Unmarshal(event.Payload, &object); err != nil {
		logger.Printf("rule payload decode failed: %v", err)
		return nil
	}
	flat := map[string]interface{}{}
	if m, ok := object.(map[string]interface{}); ok {
		flat = Flatten(m)
	}

	matches := make([]RuleMatch, 0, 1)
	for _, rule := range r.rules {
		params := ruleParameters{flat: flat, object: object, paths: rule.paths, strict: r.strict}
		result, err := rule.expr.Eval(params)
		if err != nil {
			logger.Printf("rule eval failed: %v", err)
			continue
		}
		if ok, _ := result.(bool); !ok {
			continue
		}
		for _, topic := range rule.emit {
			matches = append(matches, RuleMatch{Topic: topic, Drivers: rule.drivers})
		}
	}
	return matches
}

// rewritePaths replaces path operands outside string literals with plain
// parameter names that govaluate can resolve.
func rewritePaths(expr string) (string, map[string]string) {
	paths := map[string]string{}
	var out strings.Builder
	var segment strings.Builder
	var quote rune

	flush := func() {
		out.WriteString(pathOperand.ReplaceAllStringFunc(segment.String(), func(path string) string {
			name := "rulePath" + strconv.Itoa(len(paths))
			paths[name] = path
			return name
		}))
		segment.Reset()
	}

	for _, ch := range expr {
		switch {
		case quote != 0:
			out.WriteRune(ch)
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			flush()
			quote = ch
			out.WriteRune(ch)
		default:
			segment.WriteRune(ch)
		}
	}
	flush()
	return out.String(), paths
}

type ruleParameters struct {
	flat   map[string]interface{}
	object interface{}
	paths  map[string]string
	strict bool
}

func (p ruleParameters) Get(name string) (interface{}, error) {
	if path, ok := p.paths[name]; ok {
		if strings.HasPrefix(path, "$") {
			value, err := jsonpath.Get(path, p.object)
			if err != nil {
				return p.missing(path)
			}
			return value, nil
		}
		name = path
	}
	if value, ok := p.flat[name]; ok {
		return value, nil
	}
	return p.missing(name)
}

func (p ruleParameters) missing(name string) (interface{}, error) {
	if p.strict {
		return nil, fmt.Errorf("missing field %q", name)
	}
	return nil, nil
}
