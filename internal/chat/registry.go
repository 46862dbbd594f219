// Package chat reconciles real-time and paginated message events into the
// preview list and the open thread.
package chat

import "github.com/eldtechnologies/buddychat/internal/models"

// Registry is the ordered set of conversation previews, most recently active
// first. It holds at most one preview per counterpart.
//
// Registry is not safe for concurrent use; Engine serializes access.
type Registry struct {
	previews []models.Preview
}

// Load replaces the registry with a server snapshot, keeping its order.
// Duplicate counterparts after the first occurrence are dropped.
func (r *Registry) Load(previews []models.Preview) {
	seen := make(map[string]bool, len(previews))
	r.previews = make([]models.Preview, 0, len(previews))
	for _, p := range previews {
		if p.CounterpartID == "" || seen[p.CounterpartID] {
			continue
		}
		seen[p.CounterpartID] = true
		if p.UnreadCount < 0 {
			p.UnreadCount = 0
		}
		r.previews = append(r.previews, p)
	}
}

// Apply folds msg into the registry and moves its conversation to the front.
// It returns the counterpart id the message was filed under, or empty when
// the message has no counterpart and was not applied.
func (r *Registry) Apply(msg models.Message, localUserID string) string {
	counterpart := msg.CounterpartOf(localUserID)
	if counterpart == "" {
		return ""
	}
	outbound := msg.IsOutbound(localUserID)

	i := r.index(counterpart)
	var p models.Preview
	if i >= 0 {
		p = r.previews[i]
		r.previews = append(r.previews[:i], r.previews[i+1:]...)
		if !outbound {
			p.UnreadCount++
		}
	} else {
		name, avatar := msg.CounterpartDisplay(localUserID)
		p = models.Preview{
			CounterpartID:        counterpart,
			CounterpartName:      name,
			CounterpartAvatarURL: avatar,
		}
		if !outbound {
			p.UnreadCount = 1
		}
	}
	p.LatestMessageText = msg.Body
	p.LatestMessageAt = msg.CreatedAt

	r.previews = append(r.previews, models.Preview{})
	copy(r.previews[1:], r.previews)
	r.previews[0] = p
	return counterpart
}

// ClearUnread zeroes the unread counter for counterpartID. Unknown ids are ignored.
func (r *Registry) ClearUnread(counterpartID string) {
	if i := r.index(counterpartID); i >= 0 {
		r.previews[i].UnreadCount = 0
	}
}

// Get returns the preview for counterpartID.
func (r *Registry) Get(counterpartID string) (models.Preview, bool) {
	if i := r.index(counterpartID); i >= 0 {
		return r.previews[i], true
	}
	return models.Preview{}, false
}

// Snapshot returns a copy of the previews in display order.
func (r *Registry) Snapshot() []models.Preview {
	return append([]models.Preview(nil), r.previews...)
}

// Len returns the number of conversations.
func (r *Registry) Len() int {
	return len(r.previews)
}

// TotalUnread sums unread counters across all conversations.
func (r *Registry) TotalUnread() int {
	total := 0
	for _, p := range r.previews {
		total += p.UnreadCount
	}
	return total
}

func (r *Registry) index(counterpartID string) int {
	for i, p := range r.previews {
		if p.CounterpartID == counterpartID {
			return i
		}
	}
	return -1
}
