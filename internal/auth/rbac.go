package auth

// RequireRole fails with ErrForbidden unless the identity's role is one of
// the listed roles. Call sites enumerate exactly the roles they accept; no
// role implies another.
func RequireRole(id Identity, allowed ...Role) error {
	for _, role := range allowed {
		if id.Role == role {
			return nil
		}
	}
	return ErrForbidden
}

// CanEditRecipe reports whether the identity may modify a recipe owned by
// authorID: the owner, editors and admins.
func CanEditRecipe(id Identity, authorID string) bool {
	if authorID != "" && id.UserID == authorID {
		return true
	}
	return id.Role == RoleEditor || id.Role == RoleAdmin
}

// CanManagePublicationStatus reports whether the identity may publish or
// unpublish content. Editor-or-admin; ownership does not grant it.
func CanManagePublicationStatus(id Identity) bool {
	return id.Role == RoleEditor || id.Role == RoleAdmin
}

// CanManageUsers reports whether the identity may administer accounts and
// roles. Admin-only.
func CanManageUsers(id Identity) bool {
	return id.Role == RoleAdmin
}
