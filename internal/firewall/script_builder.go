package firewall

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// quote leaves nft identifiers bare and quotes anything else.
func quote(s string) string {
	if identifierRegex.MatchString(s) {
		return s
	}
	return fmt.Sprintf("%q", s)
}

// ScriptBuilder accumulates nft commands against one table. The result is
// fed to nft -f - and applied as a single batch.
type ScriptBuilder struct {
	family string
	table  string
	lines  []string
}

// NewScriptBuilder creates a builder for family and table.
func NewScriptBuilder(table, family string) *ScriptBuilder {
	return &ScriptBuilder{family: family, table: table}
}

// object renders "<verb> <kind> <family> <table> [name]".
func (b *ScriptBuilder) object(verb, kind, name string) string {
	s := verb + " " + kind + " " + b.family + " " + quote(b.table)
	if name != "" {
		s += " " + quote(name)
	}
	return s
}

func (b *ScriptBuilder) add(line string) {
	b.lines = append(b.lines, line)
}

// AddTable creates the table if missing.
func (b *ScriptBuilder) AddTable() {
	b.add(b.object("add", "table", ""))
}

// AddTableWithComment creates the table and sets its comment.
func (b *ScriptBuilder) AddTableWithComment(comment string) {
	if comment == "" {
		b.AddTable()
		return
	}
	b.add(fmt.Sprintf("%s { comment %q; }", b.object("add", "table", ""), comment))
}

// AddSet creates a set of setType elements if missing.
func (b *ScriptBuilder) AddSet(name, setType string) {
	b.add(fmt.Sprintf("%s { type %s; }", b.object("add", "set", name), setType))
}

// AddChain declares a base chain and flushes it, so its rules can be
// rewritten without touching the table or its sets.
func (b *ScriptBuilder) AddChain(name, chainType, hook string, priority int, policy string) {
	b.add(fmt.Sprintf("%s { type %s hook %s priority %d; policy %s; }",
		b.object("add", "chain", name), chainType, hook, priority, policy))
	b.FlushChain(name)
}

// FlushChain removes all rules of a chain.
func (b *ScriptBuilder) FlushChain(name string) {
	b.add(b.object("flush", "chain", name))
}

// DeleteChain removes an empty chain.
func (b *ScriptBuilder) DeleteChain(name string) {
	b.add(b.object("delete", "chain", name))
}

// AddRule appends a rule to a chain.
func (b *ScriptBuilder) AddRule(chain, expr string) {
	b.add(b.object("add", "rule", chain) + " " + expr)
}

// AddSetElements adds elements to a set. Existing elements are ignored.
func (b *ScriptBuilder) AddSetElements(set string, elements []string) {
	b.elements("add", set, elements)
}

// DeleteSetElements removes elements from a set. nft fails the whole
// batch if any element is absent.
func (b *ScriptBuilder) DeleteSetElements(set string, elements []string) {
	b.elements("delete", set, elements)
}

func (b *ScriptBuilder) elements(verb, set string, elements []string) {
	if len(elements) == 0 {
		return
	}
	b.add(fmt.Sprintf("%s { %s }", b.object(verb, "element", set), strings.Join(elements, ", ")))
}

// Len returns the number of commands.
func (b *ScriptBuilder) Len() int {
	return len(b.lines)
}

// Build returns the script, one command per line, or "" when empty.
func (b *ScriptBuilder) Build() string {
	if len(b.lines) == 0 {
		return ""
	}
	return strings.Join(b.lines, "\n") + "\n"
}

func (b *ScriptBuilder) String() string {
	return b.Build()
}
