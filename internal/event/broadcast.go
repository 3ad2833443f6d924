package event

import "time"

// BroadcastChannelPrefix prefixes every category channel name.
const BroadcastChannelPrefix = "administrative-alerts."

// ChannelFor returns the broadcast channel for a category.
func ChannelFor(c Category) string {
	return BroadcastChannelPrefix + string(c)
}

// BroadcastOn names the real-time channel for the alert's category.
func (b *Base) BroadcastOn() string {
	return ChannelFor(b.category)
}

// broadcastWith builds the flat map pushed to real-time clients. Variants
// supply title and description; everything else comes from Base.
func (b *Base) broadcastWith(title, description string) map[string]any {
	return map[string]any{
		"event_id":    b.id,
		"event_type":  b.typ,
		"category":    string(b.category),
		"severity":    string(b.severity),
		"title":       title,
		"description": description,
		"occurred_at": b.occurredAt.UTC().Format(time.RFC3339),
	}
}
