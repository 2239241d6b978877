package enums

// UserRole is the marketplace role carried in access tokens.
type UserRole string

const (
	UserRoleCustomer   UserRole = "customer"
	UserRoleTechnician UserRole = "technician"
	UserRoleFinance    UserRole = "finance"
	UserRoleAdmin      UserRole = "admin"
)

var userRoles = set[UserRole]{UserRoleCustomer, UserRoleTechnician, UserRoleFinance, UserRoleAdmin}

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool { return userRoles.has(r) }
