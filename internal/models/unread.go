package models

// UnreadSettings selects which specialty channels are streamed for an account.
type UnreadSettings struct {
	Direct bool `json:"direct"`
	Local  bool `json:"local"`
	Public bool `json:"public"`
}

// DefaultUnreadSettings applies when an account has no stored settings.
func DefaultUnreadSettings() UnreadSettings {
	return UnreadSettings{Direct: false, Local: true, Public: false}
}

// Enabled reports whether channel c should be bound.
func (s UnreadSettings) Enabled(c Channel) bool {
	switch c {
	case ChannelUser:
		return true
	case ChannelDirect:
		return s.Direct
	case ChannelLocal:
		return s.Local
	case ChannelPublic:
		return s.Public
	}
	return false
}

// Channels returns the user channel followed by every enabled specialty channel.
func (s UnreadSettings) Channels() []Channel {
	out := []Channel{ChannelUser}
	for _, c := range SpecialtyChannels() {
		if s.Enabled(c) {
			out = append(out, c)
		}
	}
	return out
}
