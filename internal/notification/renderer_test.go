package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "github.com/dukastack/billing/internal/errors"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	r := NewRenderer()

	subject, html, err := r.Render(context.Background(), TemplateGraceReminder, map[string]string{
		"owner_name":            "Amina",
		"shop_name":             "Corner Books",
		"grace_end":             "March 17, 2026",
		"days_until_suspension": "4",
	})
	require.NoError(t, err)

	assert.Contains(t, subject, "Corner Books")
	assert.Contains(t, subject, "4 day(s)")
	assert.Contains(t, html, "Amina")
	assert.Contains(t, html, "March 17, 2026")
}

func TestRenderAllTemplates(t *testing.T) {
	r := NewRenderer()
	vars := map[string]string{
		"owner_name": "Amina",
		"shop_name":  "Corner Books",
		"plan_name":  "standard",
	}

	for name := range builtinTemplates {
		subject, html, err := r.Render(context.Background(), name, vars)
		require.NoError(t, err, "template %s", name)
		assert.NotEmpty(t, subject)
		assert.NotEmpty(t, html)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	r := NewRenderer()

	_, _, err := r.Render(context.Background(), "no-such-template", nil)
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}
