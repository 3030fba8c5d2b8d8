package schema

// EvidenceItem is a single document or note supplied on resume. Type carries
// the missing-item label it satisfies (e.g. "police_report").
type EvidenceItem struct {
	Type    string         `json:"type"`
	Name    string         `json:"name,omitempty"`
	Content string         `json:"content,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Evidence is the bundle of new material a caller provides when resuming a
// paused case.
type Evidence struct {
	Documents []EvidenceItem `json:"documents,omitempty"`
	Notes     []EvidenceItem `json:"notes,omitempty"`
}

// ResolvedTypes returns the distinct non-empty item types across documents
// and notes, in first-seen order.
func (e Evidence) ResolvedTypes() []string {
	seen := make(map[string]struct{})
	var types []string
	for _, item := range append(append([]EvidenceItem{}, e.Documents...), e.Notes...) {
		if item.Type == "" {
			continue
		}
		if _, ok := seen[item.Type]; ok {
			continue
		}
		seen[item.Type] = struct{}{}
		types = append(types, item.Type)
	}
	return types
}

// Empty reports whether the bundle carries no items.
func (e Evidence) Empty() bool {
	return len(e.Documents) == 0 && len(e.Notes) == 0
}
