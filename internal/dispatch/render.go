package dispatch

import (
	"regexp"
	"strings"
)

// variable pattern for template substitution: {{variable_name}}
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// recipientVariables merges global variables with the built-in recipient ones.
// Built-ins win.
func recipientVariables(global map[string]string, email string) map[string]string {
	vars := make(map[string]string, len(global)+2)
	for k, v := range global {
		vars[k] = v
	}
	vars["email"] = email
	vars["recipient_email"] = email
	return vars
}

// renderTemplate substitutes {{variable}} patterns in template string
func renderTemplate(template string, vars map[string]string) string {
	if template == "" {
		return template
	}

	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		varName := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := vars[varName]; ok {
			return value
		}
		// Keep original if variable not found
		return match
	})
}
