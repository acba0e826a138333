package fragment

// Event describes one recognized fragment file ready for processing. Events
// are immutable; they are discarded once the fragment is merged into its
// session record.
type Event struct {
	Path      string
	Kind      Kind
	SessionID string
	Record    *Record
}

// NewEvent classifies path and loads its record. The caller owns the decision
// of what to do with unrecognized kinds; no event is produced for them.
func NewEvent(path string) (*Event, error) {
	kind, sessionID := Resolve(path)
	if kind == KindUnrecognized {
		return nil, nil
	}
	record, err := LoadRecord(path)
	if err != nil {
		return nil, err
	}
	return &Event{Path: path, Kind: kind, SessionID: sessionID, Record: record}, nil
}
