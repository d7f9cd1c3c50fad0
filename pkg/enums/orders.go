package enums

// LineStatus tracks fulfillment of a single order line.
type LineStatus string

const (
	LineStatusPending        LineStatus = "pending"
	LineStatusProcessing     LineStatus = "processing"
	LineStatusShipped        LineStatus = "shipped"
	LineStatusOutForDelivery LineStatus = "out_for_delivery"
	LineStatusDelivered      LineStatus = "delivered"
	LineStatusCancelled      LineStatus = "cancelled"
)

var lineStatuses = []LineStatus{
	LineStatusPending,
	LineStatusProcessing,
	LineStatusShipped,
	LineStatusOutForDelivery,
	LineStatusDelivered,
	LineStatusCancelled,
}

func (l LineStatus) IsValid() bool { return oneOf(l, lineStatuses) }

func ParseLineStatus(raw string) (LineStatus, error) {
	return parse("line status", raw, lineStatuses)
}

// OrderStatus is derived from the line statuses, never set directly.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
)

// UserRole is the marketplace persona carried in the access token.
type UserRole string

const (
	UserRoleBuyer  UserRole = "buyer"
	UserRoleSeller UserRole = "seller"
	UserRoleAdmin  UserRole = "admin"
)

var userRoles = []UserRole{UserRoleBuyer, UserRoleSeller, UserRoleAdmin}

func (r UserRole) IsValid() bool { return oneOf(r, userRoles) }

func ParseUserRole(raw string) (UserRole, error) {
	return parse("user role", raw, userRoles)
}

// VerificationStatus is the moderation state of a listing. Only verified
// listings can be ordered.
type VerificationStatus string

const (
	VerificationStatusPending  VerificationStatus = "Pending"
	VerificationStatusVerified VerificationStatus = "Verified"
	VerificationStatusRejected VerificationStatus = "Rejected"
)
