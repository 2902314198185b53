package ai

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

type ItemType string

const (
	ItemText        ItemType = "text"
	ItemChoice      ItemType = "choice"
	ItemVisual      ItemType = "visual"
	ItemSetVars     ItemType = "set-variables"
	ItemUnsupported ItemType = "unsupported"
)

// ResponseItem is one record from the runtime's response array. Exactly the
// fields matching Type are populated; unknown record types are preserved as
// ItemUnsupported so a single odd record never fails the whole turn.
type ResponseItem struct {
	Type      ItemType
	Text      string
	Title     string
	Options   []ChoiceOption
	Visual    *Visual
	Variables map[string]any
}

type ChoiceOption struct {
	Label string
	Value string
}

type Visual struct {
	URL  string
	Kind string
}

type rawItem struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Title     string          `json:"title"`
	Options   []rawOption     `json:"options"`
	Variables map[string]any  `json:"variables"`
}

type rawOption struct {
	Label   string `json:"label"`
	Value   string `json:"value"`
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

type rawVisual struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

func decodeItems(raw []json.RawMessage) []ResponseItem {
	items := make([]ResponseItem, 0, len(raw))
	for _, r := range raw {
		var ri rawItem
		if err := json.Unmarshal(r, &ri); err != nil {
			log.Warn().Err(err).Msg("undecodable ai response record, skipping")
			items = append(items, ResponseItem{Type: ItemUnsupported})
			continue
		}
		switch ItemType(ri.Type) {
		case ItemText:
			var text string
			if err := json.Unmarshal(ri.Payload, &text); err != nil {
				items = append(items, ResponseItem{Type: ItemUnsupported})
				continue
			}
			items = append(items, ResponseItem{Type: ItemText, Text: text})
		case ItemChoice:
			opts := make([]ChoiceOption, 0, len(ri.Options))
			for _, o := range ri.Options {
				label, value := o.Label, o.Value
				if label == "" {
					label = o.Title
				}
				if value == "" {
					value = o.Payload
				}
				if value == "" {
					value = label
				}
				if label == "" {
					continue
				}
				opts = append(opts, ChoiceOption{Label: label, Value: value})
			}
			items = append(items, ResponseItem{Type: ItemChoice, Title: ri.Title, Options: opts})
		case ItemVisual:
			var v rawVisual
			if err := json.Unmarshal(ri.Payload, &v); err != nil || v.URL == "" {
				items = append(items, ResponseItem{Type: ItemUnsupported})
				continue
			}
			items = append(items, ResponseItem{Type: ItemVisual, Visual: &Visual{URL: v.URL, Kind: v.Kind}})
		case ItemSetVars:
			items = append(items, ResponseItem{Type: ItemSetVars, Variables: ri.Variables})
		default:
			items = append(items, ResponseItem{Type: ItemUnsupported})
		}
	}
	return items
}

// setMarker matches inline context assignments the runtime embeds in text,
// e.g. "See you soon [[SET:stage=checkout]]".
var setMarker = regexp.MustCompile(`\[\[SET:\s*([^=\]]+?)\s*=\s*([^\]]*?)\s*\]\]`)

// ExtractContext pulls context mutations out of a response: explicit
// set-variables records plus inline [[SET:key=value]] markers. Markers are
// stripped from the returned items so they never reach the participant.
func ExtractContext(items []ResponseItem) ([]ResponseItem, map[string]any) {
	vars := map[string]any{}
	out := make([]ResponseItem, 0, len(items))
	for _, it := range items {
		switch it.Type {
		case ItemSetVars:
			for k, v := range it.Variables {
				vars[k] = v
			}
		case ItemText:
			for _, m := range setMarker.FindAllStringSubmatch(it.Text, -1) {
				vars[m[1]] = m[2]
			}
			it.Text = strings.TrimSpace(setMarker.ReplaceAllString(it.Text, ""))
		}
		out = append(out, it)
	}
	return out, vars
}
