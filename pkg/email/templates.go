package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// TemplateManager holds the parsed email templates.
type TemplateManager struct {
	AttentionTmpl *template.Template
}

// NewTemplateManager parses all email templates at startup.
func NewTemplateManager() (*TemplateManager, error) {
	attentionTmpl, err := template.New("attention").Parse(attentionAlertTemplate)
	if err != nil {
		return nil, err
	}

	return &TemplateManager{
		AttentionTmpl: attentionTmpl,
	}, nil
}

// AlertData holds the dynamic data for an attention alert.
type AlertData struct {
	IntegrationName string
	IntegrationID   string
	ActionID        string
	Message         string
	OccurredAt      string
}

// GenerateAttentionAlertHTML executes the attention template with the
// provided data.
func (tm *TemplateManager) GenerateAttentionAlertHTML(data AlertData) (string, error) {
	var body bytes.Buffer
	if err := tm.AttentionTmpl.Execute(&body, data); err != nil {
		return "", err
	}
	return body.String(), nil
}

// AttentionAlertText renders the plain-text fallback for mail clients that
// do not display HTML.
func AttentionAlertText(data AlertData) string {
	return fmt.Sprintf(
		"Integration %s (%s) needs attention.\n\nAction: %s\nWhen: %s\n\n%s\n",
		data.IntegrationName, data.IntegrationID, data.ActionID, data.OccurredAt, data.Message,
	)
}

// --- HTML Template Definitions ---

const attentionAlertTemplate = `
<!DOCTYPE html>
<html>
<head>
	<title>Integration Needs Attention</title>
</head>
<body style="font-family: Arial, sans-serif;">
	<h2>Integration {{.IntegrationName}} needs attention</h2>
	<p>A scheduled run failed and the connector could not recover on its own.</p>
	<table cellpadding="4">
		<tr><td><b>Integration</b></td><td>{{.IntegrationName}} ({{.IntegrationID}})</td></tr>
		<tr><td><b>Action</b></td><td>{{.ActionID}}</td></tr>
		<tr><td><b>When</b></td><td>{{.OccurredAt}}</td></tr>
	</table>
	<p><b>Error:</b> {{.Message}}</p>
	<p>Check the integration's credentials and the vendor API status, then re-run the action from the portal.</p>
</body>
</html>
`
