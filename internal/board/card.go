package board

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Card is the part of a Kaiten card the registration workflow reads.
type Card struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	BoardID     int64      `json:"board_id"`
	ColumnID    int64      `json:"column_id"`
	LaneID      int64      `json:"lane_id"`
	Members     []Member   `json:"members,omitempty"`
	Files       []File     `json:"files,omitempty"`
	Properties  Properties `json:"properties,omitempty"`
}

// Member is a card participant. Type distinguishes responsible executors from
// ordinary watchers.
type Member struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Username string `json:"username,omitempty"`
	Type     int    `json:"type"`
}

// DisplayName is the full name, falling back to the username.
func (m Member) DisplayName() string {
	if m.FullName != "" {
		return m.FullName
	}
	return m.Username
}

// File is an attachment of a card.
type File struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}

// Properties holds custom field values. Kaiten returns them either as an
// object keyed "id_<field>" or as a list of {id, value}; both decode here.
type Properties struct {
	values map[string]json.RawMessage
}

func propertyKey(fieldID string) string {
	return strings.TrimPrefix(strings.TrimSpace(fieldID), "id_")
}

func (p *Properties) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	p.values = make(map[string]json.RawMessage)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("card properties: %w", err)
		}
		for k, v := range m {
			p.values[propertyKey(k)] = v
		}
	case '[':
		var list []struct {
			ID    json.RawMessage `json:"id"`
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(b, &list); err != nil {
			return fmt.Errorf("card properties: %w", err)
		}
		for _, item := range list {
			id, ok := scalar(item.ID)
			if !ok {
				continue
			}
			p.values[propertyKey(id)] = item.Value
		}
	default:
		return fmt.Errorf("card properties: unexpected JSON %q", string(b[:1]))
	}
	return nil
}

func (p Properties) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(p.values))
	for k, v := range p.values {
		out["id_"+k] = v
	}
	return json.Marshal(out)
}

// Value returns a field as text. Strings, numbers and booleans are used as is;
// objects contribute their "date", "value" or "text" member; lists their first
// scalar element.
func (p Properties) Value(fieldID string) (string, bool) {
	raw, ok := p.values[propertyKey(fieldID)]
	if !ok {
		return "", false
	}
	return normalize(raw)
}

// Len is the number of fields present.
func (p Properties) Len() int { return len(p.values) }

func normalize(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	switch raw[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", false
		}
		for _, k := range []string{"date", "value", "text"} {
			if v, ok := obj[k]; ok {
				return normalize(v)
			}
		}
		return "", false
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return "", false
		}
		for _, item := range list {
			if s, ok := normalize(item); ok {
				return s, true
			}
		}
		return "", false
	default:
		return scalar(raw)
	}
}

func scalar(raw json.RawMessage) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
