package domain

import (
	"fmt"
	"sort"
)

// Principal identifies an account acting on the registry. The empty
// principal is the null identity.
type Principal string

// IsZero reports whether p is the null identity.
func (p Principal) IsZero() bool { return p == "" }

// RoleKind selects one of the explicit role memberships.
type RoleKind int

// Role kinds. The owner is not a role kind; it is held by RoleTable.Owner.
const (
	RoleAdmin RoleKind = iota
	RoleManufacturer
	RoleDistributor
	RoleRetailer
)

var roleNames = [...]string{"admin", "manufacturer", "distributor", "retailer"}

// RoleKinds lists every role kind.
func RoleKinds() []RoleKind {
	return []RoleKind{RoleAdmin, RoleManufacturer, RoleDistributor, RoleRetailer}
}

// Valid reports whether k is a known role kind.
func (k RoleKind) Valid() bool { return k >= RoleAdmin && k <= RoleRetailer }

func (k RoleKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("role(%d)", int(k))
	}
	return roleNames[k]
}

// MarshalText encodes the role kind by name so role tables serialize as
// readable JSON object keys.
func (k RoleKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: role kind %d", ErrInvalidArgument, int(k))
	}
	return []byte(roleNames[k]), nil
}

// UnmarshalText decodes a role kind name.
func (k *RoleKind) UnmarshalText(b []byte) error {
	parsed, err := ParseRoleKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseRoleKind resolves a role kind from its lower-case name.
func ParseRoleKind(name string) (RoleKind, error) {
	for i, n := range roleNames {
		if n == name {
			return RoleKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, name)
}

// RoleTable holds registry-wide role assignments. Member slices are kept
// sorted and free of duplicates.
type RoleTable struct {
	Owner   Principal                `json:"owner"`
	Members map[RoleKind][]Principal `json:"members"`
}

// Initialized reports whether an owner has been set.
func (t RoleTable) Initialized() bool { return !t.Owner.IsZero() }

// Holds reports whether p explicitly holds role k. Owner status is not
// considered.
func (t RoleTable) Holds(p Principal, k RoleKind) bool {
	members := t.Members[k]
	i := sort.Search(len(members), func(i int) bool { return members[i] >= p })
	return i < len(members) && members[i] == p
}

// Grant adds p to role k. It reports whether membership changed.
func (t *RoleTable) Grant(p Principal, k RoleKind) bool {
	if t.Holds(p, k) {
		return false
	}
	if t.Members == nil {
		t.Members = make(map[RoleKind][]Principal)
	}
	members := append(t.Members[k], p)
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	t.Members[k] = members
	return true
}

// Revoke removes p from role k. It reports whether membership changed.
func (t *RoleTable) Revoke(p Principal, k RoleKind) bool {
	members := t.Members[k]
	for i, m := range members {
		if m == p {
			t.Members[k] = append(members[:i:i], members[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the table.
func (t RoleTable) Clone() RoleTable {
	out := RoleTable{Owner: t.Owner}
	if t.Members != nil {
		out.Members = make(map[RoleKind][]Principal, len(t.Members))
		for k, members := range t.Members {
			out.Members[k] = append([]Principal(nil), members...)
		}
	}
	return out
}
