package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Field names understood by special queries.
const (
	FieldConfidence    = "confidence"
	FieldSeverity      = "severity"
	FieldAudience      = "audience"
	FieldAnalyzer      = "analyzer"
	FieldCategory      = "category"
	FieldPriorityOrder = "fortify priority order"
)

// Interval is a numeric range with inclusive or exclusive bounds.
type Interval struct {
	Min        float64
	Max        float64
	IncludeMin bool
	IncludeMax bool
}

// Contains reports whether v lies within the interval.
func (iv Interval) Contains(v float64) bool {
	lower := v > iv.Min || (iv.IncludeMin && v == iv.Min)
	upper := v < iv.Max || (iv.IncludeMax && v == iv.Max)
	return lower && upper
}

// String renders the interval in query notation.
func (iv Interval) String() string {
	open, closing := "(", ")"
	if iv.IncludeMin {
		open = "["
	}
	if iv.IncludeMax {
		closing = "]"
	}
	return fmt.Sprintf("%s%g,%g%s", open, iv.Min, iv.Max, closing)
}

// ParseInterval parses "[a,b]", "(a,b]", "[a,b)" or "(a,b)" with
// non-negative decimal bounds.
func ParseInterval(s string) (Interval, error) {
	tokens, err := scanRange(s)
	if err != nil {
		return Interval{}, err
	}
	if len(tokens) != 6 {
		return Interval{}, fmt.Errorf("malformed interval %q", s)
	}

	var iv Interval
	switch tokens[0].Type {
	case TokenLBracket:
		iv.IncludeMin = true
	case TokenLParen:
	default:
		return Interval{}, fmt.Errorf("malformed interval %q: expected [ or (", s)
	}
	if tokens[1].Type != TokenNumber || tokens[2].Type != TokenComma || tokens[3].Type != TokenNumber {
		return Interval{}, fmt.Errorf("malformed interval %q: expected min,max", s)
	}
	switch tokens[4].Type {
	case TokenRBracket:
		iv.IncludeMax = true
	case TokenRParen:
	default:
		return Interval{}, fmt.Errorf("malformed interval %q: expected ] or )", s)
	}

	if iv.Min, err = strconv.ParseFloat(tokens[1].Value, 64); err != nil {
		return Interval{}, err
	}
	if iv.Max, err = strconv.ParseFloat(tokens[3].Value, 64); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Clause is one field:value condition of a special query.
type Clause struct {
	Field   string
	Value   string
	Negated bool

	interval *Interval
	err      error
}

// Valid reports whether the clause names a known field with a well-formed
// value. An invalid clause never matches.
func (c Clause) Valid() bool {
	return c.err == nil
}

// Err returns why the clause is invalid, or nil.
func (c Clause) Err() error {
	return c.err
}

// String renders the clause as it would appear in a query.
func (c Clause) String() string {
	not := ""
	if c.Negated {
		not = "!"
	}
	return fmt.Sprintf("%s:%s%s", c.Field, not, c.Value)
}

// SpecialQuery is a conjunction of clauses.
type SpecialQuery struct {
	Clauses []Clause
}

// ParseSpecial parses a special query. It never fails: clauses with an
// unknown field or a malformed interval are kept but marked invalid.
func ParseSpecial(query string) *SpecialQuery {
	q := &SpecialQuery{}
	lexer := NewLexer(query)

	var current *Clause
	for {
		tok := lexer.NextToken()
		switch tok.Type {
		case TokenEOF:
			return q
		case TokenField:
			q.Clauses = append(q.Clauses, Clause{Field: strings.ToLower(tok.Value)})
			current = &q.Clauses[len(q.Clauses)-1]
		case TokenNot:
			current.Negated = true
		case TokenValue:
			current.Value = tok.Value
			current.err = validate(current)
		}
	}
}

func validate(c *Clause) error {
	switch c.Field {
	case FieldConfidence, FieldSeverity:
		iv, err := ParseInterval(c.Value)
		if err != nil {
			return err
		}
		c.interval = &iv
		return nil
	case FieldAudience, FieldAnalyzer, FieldCategory, FieldPriorityOrder:
		return nil
	default:
		return fmt.Errorf("unknown field %q", c.Field)
	}
}

// Grammar identifies which advanced-query form a query matched.
type Grammar int

const (
	GrammarMatchAll           Grammar = iota // no grammar matched
	GrammarConfidencePriority                // confidence:[a-b] AND [fortify priority order]:P
	GrammarConfidenceSeverity                // confidence:[a,b] severity:(c,d]
	GrammarPriority                          // [fortify priority order]:P
)

var (
	confidencePriorityRe = regexp.MustCompile(`^confidence:\[(\d+(?:\.\d+)?)-(\d+(?:\.\d+)?)]\s*AND\s*\[fortify priority order]:(\w+)$`)
	confidenceSeverityRe = regexp.MustCompile(`^confidence:\[(\d+),(\d+)]\s*severity:\((\d+),(\d+)]$`)
	priorityRe           = regexp.MustCompile(`^\[fortify priority order]:(\w+)$`)
)

// AdvancedQuery is a query in one of the fixed folder-filter grammars.
type AdvancedQuery struct {
	Grammar    Grammar
	Confidence Interval
	Severity   Interval
	Priority   string
}

// ParseAdvanced matches query against the advanced grammars in order.
// A query that matches none of them selects every finding.
func ParseAdvanced(query string) *AdvancedQuery {
	if m := confidencePriorityRe.FindStringSubmatch(query); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		return &AdvancedQuery{
			Grammar:    GrammarConfidencePriority,
			Confidence: Interval{Min: lo, Max: hi, IncludeMin: true, IncludeMax: true},
			Priority:   m[3],
		}
	}

	if m := confidenceSeverityRe.FindStringSubmatch(query); m != nil {
		bounds := make([]float64, 4)
		for i := range bounds {
			n, err := strconv.Atoi(m[i+1])
			if err != nil {
				return &AdvancedQuery{Grammar: GrammarMatchAll}
			}
			bounds[i] = float64(n)
		}
		return &AdvancedQuery{
			Grammar:    GrammarConfidenceSeverity,
			Confidence: Interval{Min: bounds[0], Max: bounds[1], IncludeMin: true, IncludeMax: true},
			Severity:   Interval{Min: bounds[2], Max: bounds[3], IncludeMax: true},
		}
	}

	if m := priorityRe.FindStringSubmatch(query); m != nil {
		return &AdvancedQuery{Grammar: GrammarPriority, Priority: m[1]}
	}

	return &AdvancedQuery{Grammar: GrammarMatchAll}
}
