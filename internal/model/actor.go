package model

// Roles carried in the JWT "role" claim.
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
	// RolePayments is held by the payment collaborator that confirms holds.
	RolePayments = "PAYMENTS"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uint64
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// CanAccess reports whether the actor may read or cancel r.
func (a Actor) CanAccess(r *Reservation) bool {
	return a.IsAdmin() || r.BelongsTo(a.UserID)
}
