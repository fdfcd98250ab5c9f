package perms

// Classification is the fixed account tier assigned at creation.
type Classification string

const (
	ClassificationSuperadmin Classification = "superadmin"
	ClassificationSubadmin   Classification = "subadmin"
	ClassificationTeacher    Classification = "teacher"
)

// Valid reports whether the classification is one of the known tiers.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationSuperadmin, ClassificationSubadmin, ClassificationTeacher:
		return true
	default:
		return false
	}
}

// CoarseRole is the simplified tag embedded in issued tokens. It is a hint
// for cheap gating only; module-level checks must consult the stored account.
type CoarseRole string

const (
	CoarseRoleAdmin    CoarseRole = "admin"
	CoarseRoleSubadmin CoarseRole = "subadmin"
)

// Coarse maps a classification to its token tag: superadmin becomes "admin",
// everything else "subadmin".
func (c Classification) Coarse() CoarseRole {
	if c == ClassificationSuperadmin {
		return CoarseRoleAdmin
	}
	return CoarseRoleSubadmin
}

// Resolve computes the effective permission matrix for an account, in strict
// precedence order:
//
//  1. Superadmin gets the full matrix unconditionally; no role or override
//     lookup happens.
//  2. A custom-permissions object, when present, is authoritative: its
//     per-module records are used as-is, and modules it does not mention
//     deny every action. Role permissions are NOT merged in.
//  3. With no custom object, the referenced role's permission map (rolePerms,
//     nil when the account has no role) becomes the effective matrix.
//  4. Otherwise every module/action is denied.
//
// Suspension is not resolved here: it is an access-gate concern enforced once
// in the middleware, before any matrix lookup.
func Resolve(classification Classification, custom, rolePerms Matrix) Matrix {
	if classification == ClassificationSuperadmin {
		return FullAccess()
	}
	if custom != nil {
		return custom.Clone()
	}
	if rolePerms != nil {
		return rolePerms.Clone()
	}
	return Matrix{}
}
