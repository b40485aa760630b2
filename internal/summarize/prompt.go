package summarize

import (
	"fmt"
	"strings"
)

// calleeContext lists the known summaries of callees, one "name: summary"
// line each, in call order and without repeats. It is empty when no callee
// has a summary yet.
func calleeContext(known map[string]string, callees []string) string {
	var sb strings.Builder
	seen := make(map[string]bool, len(callees))
	for _, callee := range callees {
		summary, ok := known[callee]
		if !ok || seen[callee] {
			continue
		}
		seen[callee] = true
		if sb.Len() == 0 {
			sb.WriteString("Given the following summaries:\n")
		}
		fmt.Fprintf(&sb, "%s: %s\n", callee, summary)
	}
	return sb.String()
}

func codeBlock(code string) string {
	return "```\n" + code + "\n```\n"
}

// DirectPrompt asks for a one-sentence description of the whole function.
func DirectPrompt(code string, known map[string]string, callees []string) string {
	return calleeContext(known, callees) +
		"Describe what this function does in a single sentence:\n" +
		codeBlock(code)
}

// ChunkPrompt asks for a description of one block of a function, given the
// summaries of the blocks before it.
func ChunkPrompt(base string, previous []string, block string, strategy Strategy) string {
	var sb strings.Builder
	sb.WriteString(base)
	if len(previous) > 0 {
		sb.WriteString("And the following summaries of the code leading up to this snippet:\n")
		for i, s := range previous {
			fmt.Fprintf(&sb, "Part %d: %s\n", i+1, s)
		}
	}
	sb.WriteString(strategy.instruction())
	sb.WriteString(codeBlock(block))
	return sb.String()
}

// CombinePrompt asks for a single sentence covering every chunk summary.
func CombinePrompt(parts []string) string {
	var sb strings.Builder
	sb.WriteString("Given the following summaries of the code:\n")
	for i, s := range parts {
		fmt.Fprintf(&sb, "Part %d/%d: %s\n", i+1, len(parts), s)
	}
	sb.WriteString("Describe what the code does in a single sentence.\n")
	return sb.String()
}
