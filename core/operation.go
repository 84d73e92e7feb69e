package core

// OpKind identifies a proposed mutation against the memory set.
type OpKind string

const (
	// OpAdd creates a new memory.
	OpAdd OpKind = "ADD"

	// OpUpdate replaces the text of an existing memory.
	OpUpdate OpKind = "UPDATE"

	// OpDelete removes an existing memory. The operation carries the
	// memory text at time of deletion for audit and judge reasoning.
	OpDelete OpKind = "DELETE"

	// OpNone is a no-op. A rejected DELETE is converted to NONE with the
	// rejection reasoning preserved under the "protection_reason"
	// metadata key.
	OpNone OpKind = "NONE"
)

// ProtectionReasonKey is the metadata key carrying the judge's reasoning
// when a proposed deletion is rejected.
const ProtectionReasonKey = "protection_reason"

// Operation is a proposed or committed mutation. Operations are
// ephemeral: produced by the extractor, transformed by the reconciler,
// and either committed to the fact store or discarded.
type Operation struct {
	Kind     OpKind         `json:"event"`
	MemoryID string         `json:"memory_id,omitempty"`
	Text     string         `json:"memory"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// WithMeta returns a copy of the operation with the given metadata key
// set, leaving the original untouched.
func (op Operation) WithMeta(key string, value any) Operation {
	meta := make(map[string]any, len(op.Metadata)+1)
	for k, v := range op.Metadata {
		meta[k] = v
	}
	meta[key] = value
	op.Metadata = meta
	return op
}

// Valid reports whether the operation kind is one of the recognized
// variants. The reconciler rejects batches containing anything else.
func (op Operation) Valid() bool {
	switch op.Kind {
	case OpAdd, OpUpdate, OpDelete, OpNone:
		return true
	}
	return false
}
