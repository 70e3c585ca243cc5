package domain

// Product is owned by the catalog; this core only reads it and adjusts its
// stock counter through the inventory ledger.
type Product struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	StockQuantity int    `json:"stock_quantity"`
}

type CustomerRole string

const (
	RoleCustomer CustomerRole = "customer"
	RoleStaff    CustomerRole = "staff"
	RoleAdmin    CustomerRole = "admin"
)

// Customer is the shape resolved from the customer directory collaborator.
type Customer struct {
	ID    int64        `json:"id"`
	Name  string       `json:"name"`
	Email string       `json:"email"`
	Phone string       `json:"phone"`
	Role  CustomerRole `json:"role"`
}

// IsStaff reports whether the role may approve orders and drive transitions.
func (c *Customer) IsStaff() bool {
	return c.Role == RoleStaff || c.Role == RoleAdmin
}
