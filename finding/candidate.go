package finding

// Candidate is the per-finding projection submitted for triage. It carries
// everything the triage service needs in a transport-friendly shape.
type Candidate struct {
	InstanceID    string     `json:"instance_id"`
	Category      string     `json:"category"`
	Subcategory   string     `json:"subcategory,omitempty"`
	Kingdom       string     `json:"kingdom,omitempty"`
	Priority      string     `json:"priority"`
	Confidence    float64    `json:"confidence"`
	Severity      float64    `json:"severity"`
	Likelihood    float64    `json:"likelihood"`
	Analyzer      string     `json:"analyzer"`
	Language      string     `json:"language,omitempty"`
	FileExtension string     `json:"file_extension,omitempty"`
	Source        Location   `json:"source"`
	Sink          Location   `json:"sink"`
	Trace         []Location `json:"trace,omitempty"`
}

// NewCandidate projects f into a Candidate.
func NewCandidate(f *Finding) Candidate {
	trace := make([]Location, len(f.Trace))
	copy(trace, f.Trace)

	return Candidate{
		InstanceID:    f.InstanceID,
		Category:      f.Category,
		Subcategory:   f.Subcategory,
		Kingdom:       f.Kingdom,
		Priority:      f.Priority.String(),
		Confidence:    f.Confidence,
		Severity:      f.InstanceSeverity,
		Likelihood:    f.Likelihood(),
		Analyzer:      f.Analyzer,
		Language:      f.Language,
		FileExtension: f.Primary().Extension(),
		Source:        f.Primary(),
		Sink:          f.Sink(),
		Trace:         trace,
	}
}

// NewCandidates projects every finding, preserving order.
func NewCandidates(findings []Finding) []Candidate {
	out := make([]Candidate, 0, len(findings))
	for i := range findings {
		out = append(out, NewCandidate(&findings[i]))
	}
	return out
}
