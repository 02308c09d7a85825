package xid

import "github.com/google/uuid"

// New returns a prefixed random identifier, e.g. "sale-6f1c...".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
