package service

import "testing"

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		variables map[string]string
		want      string
	}{
		{
			name:      "substitutes variables",
			body:      "Hi {{name}}, join us on {{date}}!",
			variables: map[string]string{"name": "Ada", "date": "June 21"},
			want:      "Hi Ada, join us on June 21!",
		},
		{
			name:      "whitespace inside braces",
			body:      "Hi {{ name }}!",
			variables: map[string]string{"name": "Ada"},
			want:      "Hi Ada!",
		},
		{
			name:      "unresolved placeholder stays verbatim",
			body:      "Hi {{name}}, venue: {{venue}}",
			variables: map[string]string{"name": "Ada"},
			want:      "Hi Ada, venue: {{venue}}",
		},
		{
			name:      "no variables leaves body untouched",
			body:      "Hi {{name}}!",
			variables: nil,
			want:      "Hi {{name}}!",
		},
		{
			name:      "empty value is substituted",
			body:      "Hi {{name}}!",
			variables: map[string]string{"name": ""},
			want:      "Hi !",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderTemplate(tt.body, tt.variables); got != tt.want {
				t.Errorf("RenderTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}
