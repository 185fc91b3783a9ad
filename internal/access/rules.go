// Package access implements the sender and chat admission rules.
package access

type idSet map[int64]struct{}

func newIDSet(ids []int64) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s idSet) has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Rules decides whether an event may be answered based on who sent it and where.
// The deny list always takes precedence over the allow list.
// An empty allow list or chat allow list admits everyone.
type Rules struct {
	deny  idSet
	allow idSet
	chats idSet
}

// New builds Rules from the configured id lists.
func New(allowUsers, denyUsers, allowChats []int64) *Rules {
	return &Rules{
		deny:  newIDSet(denyUsers),
		allow: newIDSet(allowUsers),
		chats: newIDSet(allowChats),
	}
}

// Permit reports whether a message from senderID in chatID may be answered.
// When it may not, reason names the rule that rejected it.
func (r *Rules) Permit(senderID, chatID int64) (ok bool, reason string) {
	if r.deny.has(senderID) {
		return false, "sender denied"
	}
	if len(r.allow) > 0 && !r.allow.has(senderID) {
		return false, "sender not allowed"
	}
	if len(r.chats) > 0 && !r.chats.has(chatID) {
		return false, "chat not allowed"
	}
	return true, ""
}
