package models

import (
	"fmt"
	"strings"
)

// Channel is one logical real-time event source.
type Channel string

const (
	ChannelUser   Channel = "user"
	ChannelLocal  Channel = "local"
	ChannelPublic Channel = "public"
	ChannelDirect Channel = "direct"
)

// SpecialtyChannels are the optional channels gated by unread settings.
func SpecialtyChannels() []Channel {
	return []Channel{ChannelDirect, ChannelLocal, ChannelPublic}
}

// View returns the timeline view fed by updates on this channel.
func (c Channel) View() View {
	switch c {
	case ChannelLocal:
		return ViewLocal
	case ChannelPublic:
		return ViewPublic
	case ChannelDirect:
		return ViewDirect
	default:
		return ViewHome
	}
}

// IsValid reports whether c is a known channel.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelUser, ChannelLocal, ChannelPublic, ChannelDirect:
		return true
	}
	return false
}

// ParseChannel parses a channel name.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannel, s)
	}
	return c, nil
}

// View names one independently rendered timeline buffer.
type View string

const (
	ViewHome          View = "home"
	ViewNotifications View = "notifications"
	ViewMentions      View = "mentions"
	ViewDirect        View = "direct"
	ViewLocal         View = "local"
	ViewPublic        View = "public"
)

// CoreViews are fed by the user channel and always receive broadcasts.
func CoreViews() []View {
	return []View{ViewHome, ViewNotifications, ViewMentions}
}

// AllViews lists every view in display order.
func AllViews() []View {
	return []View{ViewHome, ViewNotifications, ViewMentions, ViewDirect, ViewLocal, ViewPublic}
}

// ParseView parses a view name.
func ParseView(s string) (View, error) {
	v := View(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllViews() {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidView, s)
}
