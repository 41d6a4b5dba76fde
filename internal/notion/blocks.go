package notion

import (
	"encoding/json"
	"strconv"
	"strings"
)

type richText struct {
	PlainText string `json:"plain_text"`
}

func flattenRichText(parts []richText) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.PlainText)
	}
	return strings.TrimSpace(b.String())
}

// block is the subset of a Notion block the flattener reads. Every
// textual block type carries its content in a rich_text array keyed by
// the block type, so the raw JSON is kept and probed by type.
type block struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	HasChildren bool   `json:"has_children"`

	raw json.RawMessage
}

func (b *block) UnmarshalJSON(data []byte) error {
	type alias block
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*b = block(a)
	b.raw = append(json.RawMessage(nil), data...)
	return nil
}

// text extracts the plain text of the block, whatever its type.
func (b *block) text() string {
	if b.Type == "" || len(b.raw) == 0 {
		return ""
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(b.raw, &outer); err != nil {
		return ""
	}
	body, ok := outer[b.Type]
	if !ok {
		return ""
	}

	var content struct {
		RichText []richText `json:"rich_text"`
		Title    string     `json:"title"`
	}
	if err := json.Unmarshal(body, &content); err != nil {
		return ""
	}
	if text := flattenRichText(content.RichText); text != "" {
		switch b.Type {
		case "bulleted_list_item", "numbered_list_item":
			return "- " + text
		case "to_do":
			return "[ ] " + text
		default:
			return text
		}
	}
	// child_page and child_database blocks carry a title instead
	return strings.TrimSpace(content.Title)
}

// flattenProperty reduces a database property value of any type to a
// short text form. Unknown property shapes flatten to nothing.
func flattenProperty(raw json.RawMessage) string {
	var prop struct {
		Type     string     `json:"type"`
		Title    []richText `json:"title"`
		RichText []richText `json:"rich_text"`
		Number   *float64   `json:"number"`
		URL      string     `json:"url"`
		Email    string     `json:"email"`
		Checkbox *bool      `json:"checkbox"`
		Select   *struct {
			Name string `json:"name"`
		} `json:"select"`
		MultiSelect []struct {
			Name string `json:"name"`
		} `json:"multi_select"`
		Date *struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"date"`
	}
	if err := json.Unmarshal(raw, &prop); err != nil {
		return ""
	}

	switch prop.Type {
	case "title":
		return flattenRichText(prop.Title)
	case "rich_text":
		return flattenRichText(prop.RichText)
	case "number":
		if prop.Number != nil {
			return strconv.FormatFloat(*prop.Number, 'f', -1, 64)
		}
	case "url":
		return prop.URL
	case "email":
		return prop.Email
	case "checkbox":
		if prop.Checkbox != nil && *prop.Checkbox {
			return "yes"
		}
		if prop.Checkbox != nil {
			return "no"
		}
	case "select":
		if prop.Select != nil {
			return prop.Select.Name
		}
	case "multi_select":
		names := make([]string, 0, len(prop.MultiSelect))
		for _, s := range prop.MultiSelect {
			names = append(names, s.Name)
		}
		return strings.Join(names, ", ")
	case "date":
		if prop.Date != nil {
			if prop.Date.End != "" {
				return prop.Date.Start + " to " + prop.Date.End
			}
			return prop.Date.Start
		}
	}
	return ""
}
