// templates/funcs.go
package templates

import (
	"html/template"
	"strings"
)

// Funcs returns the helpers available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		// ariaRole maps a status CSS class to its ARIA live-region role.
		"ariaRole": func(class string) string {
			if strings.HasSuffix(class, "alert") {
				return "alert"
			}
			return "status"
		},
	}
}
