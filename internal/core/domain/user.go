package domain

type Role int

const (
	RoleCustomer Role = 0
	RoleAdmin    Role = 1
)

type User struct {
	ID   string
	Name string
	Role Role
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
