package frontmatter

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Meta holds the typed front-matter fields of a post.
type Meta struct {
	Layout  string   `yaml:"layout,omitempty"`
	Title   string   `yaml:"title"`
	Date    Date     `yaml:"date,omitempty"`
	Tags    []string `yaml:"tags,omitempty"`
	Snippet string   `yaml:"snippet,omitempty"`
	Slug    string   `yaml:"slug,omitempty"`
	Author  string   `yaml:"author,omitempty"`
	Draft   bool     `yaml:"draft,omitempty"`
}

// metaKeys mirrors the yaml tags of Meta.
var metaKeys = map[string]bool{
	"layout":  true,
	"title":   true,
	"date":    true,
	"tags":    true,
	"snippet": true,
	"slug":    true,
	"author":  true,
	"draft":   true,
}

// Date wraps time.Time so front-matter accepts both date-only and full
// timestamp scalars.
type Date struct {
	time.Time
}

// dateLayouts are the accepted scalar forms, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("date must be a scalar: %w", err)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized date %q", raw)
}

// MarshalYAML implements yaml.Marshaler, emitting a date-only scalar when the
// value carries no time-of-day component.
func (d Date) MarshalYAML() (any, error) {
	if d.Hour() == 0 && d.Minute() == 0 && d.Second() == 0 {
		return d.Format("2006-01-02"), nil
	}
	return d.Format(time.RFC3339), nil
}
