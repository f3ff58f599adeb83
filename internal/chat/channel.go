package chat

import (
	"strconv"
	"time"
)

// Channel is a named group of sessions. It holds session IDs only; the
// sessions themselves live in the Registry.
type Channel struct {
	Name    string
	Created time.Time

	Topic   string
	TopicBy string
	TopicAt time.Time

	inviteOnly      bool
	topicRestricted bool
	keyed           bool
	key             string
	limited         bool
	limit           int

	// members keeps join order, which is the order NAMES and broadcasts use
	members   []int
	operators map[int]bool
	invited   map[int]bool
}

// NewChannel creates a channel whose only member and operator is creator.
func NewChannel(name string, creator int) *Channel {
	ch := &Channel{
		Name:      name,
		Created:   time.Now(),
		operators: make(map[int]bool),
		invited:   make(map[int]bool),
	}
	ch.AddUser(creator)
	ch.operators[creator] = true
	return ch
}

// Members returns a snapshot of member IDs in join order.
func (c *Channel) Members() []int {
	out := make([]int, len(c.members))
	copy(out, c.members)
	return out
}

// Size returns the number of members.
func (c *Channel) Size() int {
	return len(c.members)
}

// Empty reports whether the channel has no members left.
func (c *Channel) Empty() bool {
	return len(c.members) == 0
}

// IsMember reports whether id has joined the channel.
func (c *Channel) IsMember(id int) bool {
	for _, m := range c.members {
		if m == id {
			return true
		}
	}
	return false
}

// IsOperator reports whether id is a channel operator.
func (c *Channel) IsOperator(id int) bool {
	return c.operators[id]
}

// IsInvited reports whether id holds an invitation.
func (c *Channel) IsInvited(id int) bool {
	return c.invited[id]
}

// AddUser adds id to the members. Adding an existing member is a no-op.
func (c *Channel) AddUser(id int) {
	if !c.IsMember(id) {
		c.members = append(c.members, id)
	}
}

// RemoveUser drops id from the members together with its operator status
// and any invitation. It reports whether id was a member.
func (c *Channel) RemoveUser(id int) bool {
	delete(c.operators, id)
	delete(c.invited, id)
	for i, m := range c.members {
		if m == id {
			c.members = append(c.members[:i], c.members[i+1:]...)
			return true
		}
	}
	return false
}

// AddOperator grants operator status to a member.
func (c *Channel) AddOperator(id int) error {
	if !c.IsMember(id) {
		return ErrNotOnChannel
	}
	c.operators[id] = true
	return nil
}

// RemoveOperator revokes operator status. Revoking from a non-operator is
// a no-op.
func (c *Channel) RemoveOperator(id int) {
	delete(c.operators, id)
}

// Invite lets id pass the invite-only check on its next join.
func (c *Channel) Invite(id int) error {
	if c.IsMember(id) {
		return ErrUserOnChannel
	}
	c.invited[id] = true
	return nil
}

// CheckJoin runs the join restrictions for id presenting key.
func (c *Channel) CheckJoin(id int, key string) error {
	if c.inviteOnly && !c.invited[id] {
		return ErrInviteOnly
	}
	if c.keyed && key != c.key {
		return ErrBadKey
	}
	if c.limited && len(c.members) >= c.limit {
		return ErrChannelFull
	}
	return nil
}

// Join adds id after CheckJoin passes. An invitation is used up by the
// join.
func (c *Channel) Join(id int, key string) error {
	if c.IsMember(id) {
		return ErrAlreadyOnChannel
	}
	if err := c.CheckJoin(id, key); err != nil {
		return err
	}
	c.AddUser(id)
	delete(c.invited, id)
	return nil
}

// SetTopic changes the topic on behalf of id.
func (c *Channel) SetTopic(id int, topic, setter string) error {
	if !c.IsMember(id) {
		return ErrNotOnChannel
	}
	if c.topicRestricted && !c.operators[id] {
		return ErrNotOperator
	}
	c.Topic = topic
	c.TopicBy = setter
	c.TopicAt = time.Now()
	return nil
}

// InviteOnly reports mode +i.
func (c *Channel) InviteOnly() bool { return c.inviteOnly }

// TopicRestricted reports mode +t.
func (c *Channel) TopicRestricted() bool { return c.topicRestricted }

// Key returns the channel key and whether mode +k is set.
func (c *Channel) Key() (string, bool) { return c.key, c.keyed }

// Limit returns the member limit and whether mode +l is set.
func (c *Channel) Limit() (int, bool) { return c.limit, c.limited }

// SetInviteOnly toggles mode +i.
func (c *Channel) SetInviteOnly(on bool) { c.inviteOnly = on }

// SetTopicRestricted toggles mode +t.
func (c *Channel) SetTopicRestricted(on bool) { c.topicRestricted = on }

// SetKey sets mode +k.
func (c *Channel) SetKey(key string) {
	c.keyed = true
	c.key = key
}

// ClearKey unsets mode +k.
func (c *Channel) ClearKey() {
	c.keyed = false
	c.key = ""
}

// SetLimit sets mode +l. Limits below one are refused.
func (c *Channel) SetLimit(n int) error {
	if n < 1 {
		return ErrBadLimit
	}
	c.limited = true
	c.limit = n
	return nil
}

// ClearLimit unsets mode +l.
func (c *Channel) ClearLimit() {
	c.limited = false
	c.limit = 0
}

// Modes renders the current mode string and its arguments. The key is
// only revealed when showKey is set.
func (c *Channel) Modes(showKey bool) (string, []string) {
	modes := "+"
	var args []string
	if c.inviteOnly {
		modes += "i"
	}
	if c.topicRestricted {
		modes += "t"
	}
	if c.keyed {
		modes += "k"
		if showKey {
			args = append(args, c.key)
		} else {
			args = append(args, "*")
		}
	}
	if c.limited {
		modes += "l"
		args = append(args, strconv.Itoa(c.limit))
	}
	return modes, args
}
