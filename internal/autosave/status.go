package autosave

// Status is the save indicator shown next to the form.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// State is what the form renders: the indicator, whether there are unsaved
// changes, and the server id of the draft once it has one.
type State struct {
	Status  Status
	Dirty   bool
	DraftID string
	// LastError is the failure behind the most recent StatusError, nil otherwise.
	LastError error
}

// Label returns the text the form shows for s.
func (s State) Label() string {
	switch s.Status {
	case StatusSaving:
		return "Saving draft..."
	case StatusSaved:
		return "Draft saved"
	case StatusError:
		return "Save failed"
	}
	if s.Dirty {
		return "Unsaved changes"
	}
	return ""
}
