package enum

// ChannelKind is a notification delivery medium.
type ChannelKind string

const (
	ChannelKindEmail    ChannelKind = "email"
	ChannelKindChat     ChannelKind = "chat"
	ChannelKindIncident ChannelKind = "incident_management"
)

// Values returns all known channel kinds.
func (ChannelKind) Values() []string {
	return []string{
		string(ChannelKindEmail),
		string(ChannelKindChat),
		string(ChannelKindIncident),
	}
}
