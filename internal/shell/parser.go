package shell

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// commandNames parses a shell script and returns the command words it
// invokes, in order. It rejects scripts bash itself could not parse, so a
// typo fails fast instead of producing a confusing session.
func commandNames(script string) ([]string, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	var names []string
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if name := firstWord(call); name != "" {
				names = append(names, name)
			}
		}
		return true
	})

	if len(names) == 0 {
		return nil, fmt.Errorf("no command found")
	}
	return names, nil
}

// firstWord extracts the literal command word from a call expression.
func firstWord(call *syntax.CallExpr) string {
	if len(call.Args) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, part := range call.Args[0].Parts {
		if lit, ok := part.(*syntax.Lit); ok {
			sb.WriteString(lit.Value)
		}
	}
	return sb.String()
}
