// Package autosave keeps a remote draft session eventually consistent with local edits.
//
// A Reconciler owns the working draft of a session form, compares it with the last
// snapshot the server acknowledged, and saves it in the background once edits have
// been quiet for a debounce interval.
package autosave

import (
	"slices"
	"strings"
)

// Draft is the editable part of a session: title, tags and the JSON file reference.
// The same shape is used for the working copy and for the last saved snapshot.
type Draft struct {
	Title         string   `json:"title"`
	Tags          []string `json:"tags"`
	FileReference string   `json:"json_file_url,omitempty"`
}

// Clone returns a deep copy so later edits to d never reach the copy.
func (d Draft) Clone() Draft {
	out := d
	if d.Tags != nil {
		out.Tags = slices.Clone(d.Tags)
	}
	return out
}

// IsEmpty reports whether the draft carries nothing worth saving.
func (d Draft) IsEmpty() bool {
	return strings.TrimSpace(d.Title) == "" &&
		len(d.Tags) == 0 &&
		strings.TrimSpace(d.FileReference) == ""
}

// Equal compares field by field. Tags are compared in order, so reordering
// tags counts as a change.
func (d Draft) Equal(other Draft) bool {
	return d.Title == other.Title &&
		d.FileReference == other.FileReference &&
		slices.Equal(d.Tags, other.Tags)
}

// WithTag returns a copy of d with tag appended. Blank and duplicate tags are ignored.
func (d Draft) WithTag(tag string) Draft {
	tag = strings.TrimSpace(tag)
	out := d.Clone()
	if tag == "" || slices.Contains(out.Tags, tag) {
		return out
	}
	out.Tags = append(out.Tags, tag)
	return out
}

// WithoutTag returns a copy of d with tag removed.
func (d Draft) WithoutTag(tag string) Draft {
	out := d.Clone()
	out.Tags = slices.DeleteFunc(out.Tags, func(t string) bool { return t == tag })
	return out
}

// normalizeTags trims tags and drops blanks and duplicates, keeping first occurrence order.
func normalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
