package templates

import (
	"bytes"
	"html/template"
	"log"
	"sort"
)

var paragraphTemplate = template.Must(template.New("paragraph").Parse(
	`<p style="font-family: Helvetica, sans-serif; font-size: 16px; margin: 0 0 16px;">{{.}}</p>`))

var fieldTableTemplate = template.Must(template.New("fields").Parse(`
<table role="presentation" border="0" cellpadding="4" cellspacing="0" width="100%">
{{- range .}}
  <tr>
    <td style="font-weight: bold; vertical-align: top; width: 35%;">{{.Name}}</td>
    <td style="vertical-align: top;">{{.Value}}</td>
  </tr>
{{- end}}
</table>`))

// GetParagraph renders escaped text as a paragraph.
func GetParagraph(text string) string {
	var buf bytes.Buffer
	if err := paragraphTemplate.Execute(&buf, text); err != nil {
		log.Printf("Error executing paragraph template: %v", err)
		return ""
	}
	return buf.String()
}

type field struct {
	Name  string
	Value string
}

// GetFieldTable renders the fields sorted by name.
func GetFieldTable(fields map[string]string) string {
	rows := make([]field, 0, len(fields))
	for name, value := range fields {
		rows = append(rows, field{Name: name, Value: value})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	var buf bytes.Buffer
	if err := fieldTableTemplate.Execute(&buf, rows); err != nil {
		log.Printf("Error executing field table template: %v", err)
		return ""
	}
	return buf.String()
}
