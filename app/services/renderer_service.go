// Package services provides external service integrations and technical concerns like rendering, tokens, and delivery transports
package services

import (
	"strings"

	"github.com/calyxsuite/outreach/models"
)

// Renderer substitutes contact placeholders into campaign templates
type Renderer interface {
	Render(template string, contact *models.Contact) string
}

// RendererImpl implements Renderer with {placeholder}-style substitution
type RendererImpl struct{}

// NewRenderer creates a new renderer instance
func NewRenderer() Renderer {
	return &RendererImpl{}
}

// Render replaces every known placeholder with the contact's values. Unknown
// placeholders are left untouched; a nil contact renders the template as is.
func (r *RendererImpl) Render(template string, contact *models.Contact) string {
	if contact == nil {
		return template
	}

	replacer := strings.NewReplacer(
		"{first_name}", contact.FirstName,
		"{last_name}", contact.LastName,
		"{full_name}", contact.FullName(),
		"{email}", contact.Email,
		"{phone}", contact.Phone,
	)

	return replacer.Replace(template)
}
