package types

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	UUID_PREFIX_SUBSCRIPTION  = "subs"
	UUID_PREFIX_SHOP          = "shop"
	UUID_PREFIX_WEBHOOK_EVENT = "webh"
	UUID_PREFIX_AUDIT_LOG     = "audt"
	UUID_PREFIX_PAYMENT       = "paym"
	UUID_PREFIX_REFUND        = "refd"
	UUID_PREFIX_JOB           = "job"
	UUID_PREFIX_NOTIFICATION  = "notf"
)

// GenerateUUID returns a lexicographically sortable unique id.
func GenerateUUID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// GenerateUUIDWithPrefix returns a prefixed unique id, e.g. subs_01H...
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}
