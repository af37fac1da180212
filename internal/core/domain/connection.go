package domain

type ConnectionID string

type UserID string

type GroupID string

// Connection is the ephemeral transport-level session record. It is created
// on transport connect, bound to a user by an explicit authenticate step and
// destroyed on disconnect. The connection registry owns all instances.
type Connection struct {
	ID      ConnectionID
	UserID  UserID
	GroupID GroupID // empty until the connection joins a group
}

// InGroup reports whether the connection is currently joined to groupID.
func (c *Connection) InGroup(groupID GroupID) bool {
	return c != nil && c.GroupID != "" && c.GroupID == groupID
}
