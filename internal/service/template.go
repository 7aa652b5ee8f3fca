package service

import "regexp"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{name}} placeholders from variables into the
// template body. Placeholders without a matching variable are left
// verbatim, never erased, so a botched variable map stays visible in the
// rendered audit record.
func RenderTemplate(body string, variables map[string]string) string {
	if len(variables) == 0 {
		return body
	}

	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := variables[name]; ok {
			return value
		}
		return match
	})
}
