// Package objid defines composite object identifiers for decoded world objects.
//
// An ID is the byte offset of the object's record inside its block, OR'd with
// scope bits that identify the block that owns it.
package objid

import "fmt"

// ID identifies one placed object in a loaded world.
type ID uint64

const (
	// OffsetBits is the number of low bits holding the intra-block offset.
	OffsetBits = 24

	// OffsetMask selects the intra-block offset.
	OffsetMask ID = 1<<OffsetBits - 1

	// ScopeMask selects the owning block's scope bits.
	ScopeMask = ^OffsetMask

	// None is the "no object" sentinel (no chain target, lookup miss).
	None = ^ID(0)
)

// Scope returns the scope bits for the n-th loaded block.
func Scope(n uint32) ID {
	return ID(n) << OffsetBits
}

// Make combines scope bits with a record offset.
func Make(scope ID, offset int32) ID {
	return scope&ScopeMask | ID(uint32(offset))&OffsetMask
}

// Scope returns the scope bits of id.
func (id ID) Scope() ID {
	return id & ScopeMask
}

// Offset returns the intra-block offset of id.
func (id ID) Offset() int32 {
	return int32(id & OffsetMask)
}

// Sibling resolves a link target read from id's block into a full ID.
// Non-positive targets mean "no link" and yield None.
func (id ID) Sibling(target int32) ID {
	if target <= 0 || id == None {
		return None
	}
	return Make(id.Scope(), target)
}

// Valid reports whether id is not the None sentinel.
func (id ID) Valid() bool {
	return id != None
}

// String formats id as hex, matching how the block dumps print it.
func (id ID) String() string {
	if id == None {
		return "none"
	}
	return fmt.Sprintf("0x%08x", uint64(id))
}

// Parse reads an ID printed by String (hex with or without 0x prefix).
func Parse(s string) (ID, error) {
	var v uint64
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if _, err := fmt.Sscanf(s, "%x", &v); err != nil {
		return None, fmt.Errorf("parsing object id %q: %w", s, err)
	}
	return ID(v), nil
}
