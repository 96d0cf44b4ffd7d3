package mention

// DBKind is the storage shape of a collection.
type DBKind string

const (
	DBKindRelational DBKind = "relational"
	DBKindDocument   DBKind = "document"
)

// CollectionRef is a read-only snapshot of one referenceable collection.
type CollectionRef struct {
	Name          string `json:"name"`
	OwnerUsername string `json:"owner_username"`
	IsOwn         bool   `json:"is_own"`
	DBKind        DBKind `json:"db_kind"`
	RowCount      int    `json:"row_count"`
}

// DisplayRef is the canonical reference spliced into message text on
// acceptance: the bare name for own collections, owner:name otherwise.
func (c CollectionRef) DisplayRef() string {
	if c.IsOwn {
		return c.Name
	}
	return c.OwnerUsername + ":" + c.Name
}

// Catalog is the list of collections visible to the current user, in the
// order the catalog lookup returned them.
type Catalog []CollectionRef

// nameCounts counts how often each name occurs across the whole catalog.
func (c Catalog) nameCounts() map[string]int {
	counts := make(map[string]int, len(c))
	for _, ref := range c {
		counts[ref.Name]++
	}
	return counts
}
