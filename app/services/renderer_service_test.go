package services

import (
	"testing"

	"github.com/calyxsuite/outreach/models"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	renderer := NewRenderer()
	contact := &models.Contact{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.com",
		Phone:     "+14155550100",
	}

	tests := []struct {
		name     string
		template string
		contact  *models.Contact
		want     string
	}{
		{
			name:     "all placeholders",
			template: "Hi {first_name} {last_name} ({full_name}), {email} / {phone}",
			contact:  contact,
			want:     "Hi Jane Doe (Jane Doe), jane@example.com / +14155550100",
		},
		{
			name:     "repeated placeholder",
			template: "{first_name} {first_name}",
			contact:  contact,
			want:     "Jane Jane",
		},
		{
			name:     "unknown placeholder left untouched",
			template: "Hi {nickname}",
			contact:  contact,
			want:     "Hi {nickname}",
		},
		{
			name:     "nil contact returns template as is",
			template: "Hi {first_name}",
			contact:  nil,
			want:     "Hi {first_name}",
		},
		{
			name:     "empty fields substitute empty strings",
			template: "Hi {first_name}{last_name}",
			contact:  &models.Contact{},
			want:     "Hi ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderer.Render(tt.template, tt.contact))
		})
	}
}

func TestRenderFullNameFallbacks(t *testing.T) {
	renderer := NewRenderer()

	assert.Equal(t, "Jane", renderer.Render("{full_name}", &models.Contact{FirstName: "Jane"}))
	assert.Equal(t, "Doe", renderer.Render("{full_name}", &models.Contact{LastName: "Doe"}))
}
