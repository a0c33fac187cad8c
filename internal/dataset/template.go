package dataset

import (
	"strings"
)

// SubstitutePlaceholders replaces every {{field}} occurrence in the template
// with the record's value for that field. Placeholders without a matching
// field are left unchanged.
func SubstitutePlaceholders(template string, record Record) string {
	result := template
	for key, value := range record {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}
