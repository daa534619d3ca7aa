package roomchat

import "sort"

// PresenceSet holds the participant ids believed connected to a room.
// Not safe for concurrent use; RoomSync guards it with its own lock.
type PresenceSet struct {
	members map[string]struct{}
}

// NewPresenceSet creates an empty set.
func NewPresenceSet() *PresenceSet {
	return &PresenceSet{members: make(map[string]struct{})}
}

// Add inserts id; empty ids are ignored.
func (p *PresenceSet) Add(id string) {
	if id == "" {
		return
	}
	p.members[id] = struct{}{}
}

// Remove deletes id; removing an absent id is a no-op.
func (p *PresenceSet) Remove(id string) {
	delete(p.members, id)
}

// Has reports membership.
func (p *PresenceSet) Has(id string) bool {
	_, ok := p.members[id]
	return ok
}

// Len returns the member count.
func (p *PresenceSet) Len() int {
	return len(p.members)
}

// Replace swaps the whole membership for ids.
func (p *PresenceSet) Replace(ids []string) {
	p.members = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		p.Add(id)
	}
}

// IDs returns the members sorted, for stable display and comparison.
func (p *PresenceSet) IDs() []string {
	out := make([]string, 0, len(p.members))
	for id := range p.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clear empties the set.
func (p *PresenceSet) Clear() {
	p.members = make(map[string]struct{})
}
