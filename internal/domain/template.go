package domain

import "time"

// LocalizedContent is the title/body pair for one locale.
type LocalizedContent struct {
	Title string `json:"title" yaml:"title"`
	Body  string `json:"body" yaml:"body"`
}

// Template is a localized message template. Placeholders use the
// {{path.to.field}} form and must appear in Variables.
type Template struct {
	ID        string                      `json:"id" db:"id" yaml:"id"`
	Name      string                      `json:"name" db:"name" yaml:"name"`
	AgentType AgentType                   `json:"agent_type" db:"agent_type" yaml:"agent_type"`
	Channel   Channel                     `json:"channel" db:"channel" yaml:"channel"`
	Locales   map[string]LocalizedContent `json:"locales" db:"locales" yaml:"locales"`
	ActionURL string                      `json:"action_url" db:"action_url" yaml:"action_url"`
	Variables []string                    `json:"variables" db:"variables" yaml:"variables"`
	IsActive  bool                        `json:"is_active" db:"is_active" yaml:"-"`
	UpdatedAt time.Time                   `json:"updated_at" db:"updated_at" yaml:"-"`
}

// Declares reports whether path is one of the template's declared variables.
func (t *Template) Declares(path string) bool {
	for _, v := range t.Variables {
		if v == path {
			return true
		}
	}
	return false
}

// TemplateRef identifies the template a dispatch plan renders. TemplateID
// wins when set; otherwise the template is resolved by agent type + channel.
type TemplateRef struct {
	TemplateID string    `json:"template_id,omitempty"`
	AgentType  AgentType `json:"agent_type"`
	Channel    Channel   `json:"channel"`
}

// CacheKey is a stable string form used by template caches.
func (r TemplateRef) CacheKey() string {
	if r.TemplateID != "" {
		return "id:" + r.TemplateID
	}
	return string(r.AgentType) + ":" + string(r.Channel)
}

// Rendered is the user-facing content produced for one dispatch plan.
type Rendered struct {
	TemplateID string `json:"template_id"`
	Locale     string `json:"locale"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	ActionURL  string `json:"action_url,omitempty"`
}
