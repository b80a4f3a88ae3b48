package recording

// Session is the persisted content of a recording: the ordered entries and
// the variables captured alongside them. Entry order is recording order.
type Session struct {
	Entries   []*Entry          `json:"entries"`
	Variables map[string]string `json:"variables"`
}

// NewSession creates an empty session with non-nil collections.
func NewSession() *Session {
	return &Session{
		Entries:   make([]*Entry, 0),
		Variables: make(map[string]string),
	}
}

// Clone copies the entry slice and the variables. Entries themselves are
// shared because they are immutable once recorded.
func (s *Session) Clone() *Session {
	out := &Session{
		Entries:   make([]*Entry, len(s.Entries)),
		Variables: make(map[string]string, len(s.Variables)),
	}
	copy(out.Entries, s.Entries)
	for k, v := range s.Variables {
		out.Variables[k] = v
	}
	return out
}

// MergeVariables copies vars into the session, replacing existing keys.
func (s *Session) MergeVariables(vars map[string]string) {
	if s.Variables == nil {
		s.Variables = make(map[string]string, len(vars))
	}
	for k, v := range vars {
		s.Variables[k] = v
	}
}

// Document is the on-disk form of a session.
type Document struct {
	Version   string            `json:"version"`
	Entries   []*Entry          `json:"entries"`
	Variables map[string]string `json:"variables"`
}

// Document returns the serializable form of the session.
func (s *Session) Document() Document {
	doc := Document{
		Version:   FormatVersion,
		Entries:   s.Entries,
		Variables: s.Variables,
	}
	if doc.Entries == nil {
		doc.Entries = []*Entry{}
	}
	if doc.Variables == nil {
		doc.Variables = map[string]string{}
	}
	return doc
}
