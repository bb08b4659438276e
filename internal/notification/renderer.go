package notification

import (
	"bytes"
	"context"
	"html/template"

	ierr "github.com/dukastack/billing/internal/errors"
)

// Template names for the dunning milestones.
const (
	TemplateExpiryWarning = "expiry-warning"
	TemplatePastDue       = "past-due"
	TemplateGraceReminder = "grace-reminder"
	TemplateSuspended     = "suspended"
	TemplateExpired       = "expired"
	TemplateReactivated   = "reactivated"
)

// Renderer is the rendering collaborator boundary. Template content and
// branding are out of scope; the billing engine depends only on this
// signature.
type Renderer interface {
	Render(ctx context.Context, templateName string, variables map[string]string) (subject string, html string, err error)
}

// Built-in plain templates. A branded template pack can replace this
// renderer without touching the engine.
var builtinTemplates = map[string]struct {
	subject string
	body    string
}{
	TemplateExpiryWarning: {
		subject: "Your {{.plan_name}} subscription expires in {{.days_left}} day(s)",
		body: `<p>Hi {{.owner_name}},</p>
<p>The {{.plan_name}} subscription for <strong>{{.shop_name}}</strong> expires on {{.period_end}}.
Renew now to keep your shop running without interruption.</p>`,
	},
	TemplatePastDue: {
		subject: "Payment overdue for {{.shop_name}}",
		body: `<p>Hi {{.owner_name}},</p>
<p>We could not renew the subscription for <strong>{{.shop_name}}</strong>.
Please settle the outstanding amount of {{.amount}} before {{.grace_end}} to avoid suspension.</p>`,
	},
	TemplateGraceReminder: {
		subject: "Reminder: {{.shop_name}} will be suspended in {{.days_until_suspension}} day(s)",
		body: `<p>Hi {{.owner_name}},</p>
<p>The subscription for <strong>{{.shop_name}}</strong> is still unpaid.
Service will be suspended on {{.grace_end}} unless payment is received.</p>`,
	},
	TemplateSuspended: {
		subject: "{{.shop_name}} has been suspended",
		body: `<p>Hi {{.owner_name}},</p>
<p>The subscription for <strong>{{.shop_name}}</strong> has been suspended for non-payment.
Pay the outstanding amount to restore access. Your data is safe and will be available on reactivation.</p>`,
	},
	TemplateExpired: {
		subject: "Your {{.shop_name}} subscription has expired",
		body: `<p>Hi {{.owner_name}},</p>
<p>The subscription for <strong>{{.shop_name}}</strong> ended on {{.period_end}} and auto-renew was off.
Resubscribe any time to pick up where you left off.</p>`,
	},
	TemplateReactivated: {
		subject: "Welcome back! {{.shop_name}} is active again",
		body: `<p>Hi {{.owner_name}},</p>
<p>The subscription for <strong>{{.shop_name}}</strong> has been reactivated on the {{.plan_name}} plan.
Thanks for staying with us.</p>`,
	},
}

type builtinRenderer struct{}

// NewRenderer returns the built-in template renderer.
func NewRenderer() Renderer {
	return builtinRenderer{}
}

func (builtinRenderer) Render(ctx context.Context, templateName string, variables map[string]string) (string, string, error) {
	tpl, ok := builtinTemplates[templateName]
	if !ok {
		return "", "", ierr.NewErrorf("unknown template %q", templateName).
			WithHint("Notification template is not registered").
			Mark(ierr.ErrNotFound)
	}

	subject, err := renderOne(templateName+":subject", tpl.subject, variables)
	if err != nil {
		return "", "", err
	}
	body, err := renderOne(templateName+":body", tpl.body, variables)
	if err != nil {
		return "", "", err
	}

	return subject, body, nil
}

func renderOne(name, content string, variables map[string]string) (string, error) {
	tmpl, err := template.New(name).Parse(content)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to parse notification template").
			WithReportableDetails(map[string]interface{}{"template": name}).
			Mark(ierr.ErrInternal)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, variables); err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to render notification template").
			WithReportableDetails(map[string]interface{}{"template": name}).
			Mark(ierr.ErrInternal)
	}

	return buf.String(), nil
}
