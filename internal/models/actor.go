package models

// Role is the authorization role of an Actor.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDevice Role = "device"
	RoleSystem Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDevice || r == RoleSystem
}

// Permission is an engine capability checked against an Actor.
type Permission string

const (
	PermSubmit   Permission = "submit"
	PermDispatch Permission = "dispatch"
	PermAdmin    Permission = "admin"
)

var rolePermissions = map[Role][]Permission{
	RoleAdmin:  {PermSubmit, PermDispatch, PermAdmin},
	RoleDevice: {PermSubmit},
	RoleSystem: {PermDispatch, PermAdmin},
}

// Actor is the request-scoped identity every engine operation is called with.
type Actor struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	// DeviceID binds a device actor to the one device it may submit for.
	DeviceID string `json:"device_id,omitempty"`
}

// SystemActor is used by unattended schedulers.
func SystemActor(name string) Actor {
	return Actor{Username: name, Role: RoleSystem}
}

// Can reports whether the actor holds the permission.
func (a Actor) Can(p Permission) bool {
	if a.Username == "" {
		return false
	}
	for _, granted := range rolePermissions[a.Role] {
		if granted == p {
			return true
		}
	}
	return false
}
