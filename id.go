package spendguard

import "github.com/xraph/spendguard/id"

// ID is the primary identifier type for all Spendguard entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
