// Package template renders prompt templates via plain {{VAR}} substitution
// — not Go's text/template, since the placeholder syntax is a spec-level
// contract for hand-written prompt files, not a programmable template
// language (spec §1 non-goal, §4.11).
package template

import (
	"regexp"
)

var placeholder = regexp.MustCompile(`\{\{([A-Z0-9_]+)\}\}`)

// BuiltinVars returns the built-in template variables defined in spec §6.
func BuiltinVars(worktreePath, branch, agentID, resultFile, projectRoot, taskName, prompt string) map[string]string {
	return map[string]string{
		"WORKTREE_PATH": worktreePath,
		"BRANCH":        branch,
		"AGENT_ID":      agentID,
		"RESULT_FILE":   resultFile,
		"PROJECT_ROOT":  projectRoot,
		"TASK_NAME":     taskName,
		"PROMPT":        prompt,
	}
}

// Render substitutes every {{VAR}} occurrence in body with vars[VAR].
// Unknown placeholders are left verbatim so a partially-configured template
// remains legible for debugging rather than failing the whole render.
func Render(body string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(body, func(match string) string {
		name := match[2 : len(match)-2]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// Merge combines the built-in variables with caller-supplied overrides,
// with caller-supplied keys taking precedence.
func Merge(builtin, extra map[string]string) map[string]string {
	out := make(map[string]string, len(builtin)+len(extra))
	for k, v := range builtin {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Truncate truncates s to at most n characters, appending an ellipsis
// marker when truncation occurred. Used for storing prompt text in the
// manifest (spec §3, §9 — the truncation length is a configuration
// constant resolved in internal/config).
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
