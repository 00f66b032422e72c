package jobmill

import "github.com/jobmill/jobmill/id"

// ID is the primary identifier type for all jobmill entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
