package models

import "strings"

// DefaultTootMax is the post length limit when the server does not report one.
const DefaultTootMax = 500

// Instance is the subset of server metadata the client uses.
type Instance struct {
	URI          string `json:"uri"`
	Title        string `json:"title"`
	Version      string `json:"version"`
	MaxTootChars *int   `json:"max_toot_chars,omitempty"`
}

// IsPleroma reports whether the server runs the alternate implementation.
func (i *Instance) IsPleroma() bool {
	return i != nil && strings.Contains(i.Version, "Pleroma")
}

// TootMax returns the maximum post length, falling back to DefaultTootMax.
func (i *Instance) TootMax() int {
	if i == nil || i.MaxTootChars == nil || *i.MaxTootChars <= 0 {
		return DefaultTootMax
	}
	return *i.MaxTootChars
}

// Emoji is a server custom emoji.
type Emoji struct {
	Shortcode       string `json:"shortcode"`
	URL             string `json:"url"`
	StaticURL       string `json:"static_url"`
	VisibleInPicker bool   `json:"visible_in_picker"`
}
