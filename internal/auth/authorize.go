package auth

// Owned is implemented by resources that belong to exactly one principal.
type Owned interface {
	OwnerID() int64
}

// AssertOwner returns ErrForbidden unless p owns resource. Mutations must
// call it first; reads do not.
func AssertOwner(resource Owned, p Principal) error {
	if resource == nil || p.ID == 0 || resource.OwnerID() != p.ID {
		return ErrForbidden
	}
	return nil
}
