// Package permissions maps storefront roles to the permissions they grant.
package permissions

import (
	"sort"

	"github.com/jrsteele09/storefront-gatekeeper/users"
)

// Permission is a "resource:action" key
type Permission string

const (
	UsersRead   Permission = "users:read"
	UsersCreate Permission = "users:create"
	UsersUpdate Permission = "users:update"
	UsersDelete Permission = "users:delete"

	ProductsRead   Permission = "products:read"
	ProductsCreate Permission = "products:create"
	ProductsUpdate Permission = "products:update"
	ProductsDelete Permission = "products:delete"

	OrdersRead    Permission = "orders:read"
	OrdersReadOwn Permission = "orders:read_own"
	OrdersUpdate  Permission = "orders:update"
	OrdersCancel  Permission = "orders:cancel"

	CartReadOwn   Permission = "cart:read_own"
	CartUpdateOwn Permission = "cart:update_own"

	WishlistReadOwn   Permission = "wishlist:read_own"
	WishlistUpdateOwn Permission = "wishlist:update_own"

	AnalyticsRead Permission = "analytics:read"
	SystemAdmin   Permission = "system:admin"
)

// All is every permission known to the storefront
var All = []Permission{
	UsersRead, UsersCreate, UsersUpdate, UsersDelete,
	ProductsRead, ProductsCreate, ProductsUpdate, ProductsDelete,
	OrdersRead, OrdersReadOwn, OrdersUpdate, OrdersCancel,
	CartReadOwn, CartUpdateOwn,
	WishlistReadOwn, WishlistUpdateOwn,
	AnalyticsRead, SystemAdmin,
}

func defaultRoles() map[users.Role][]Permission {
	return map[users.Role][]Permission{
		users.RoleCustomer: {
			ProductsRead,
			OrdersReadOwn,
			CartReadOwn, CartUpdateOwn,
			WishlistReadOwn, WishlistUpdateOwn,
		},
		users.RoleSeller: {
			ProductsRead, ProductsCreate, ProductsUpdate,
			OrdersRead, OrdersUpdate,
			AnalyticsRead,
		},
		users.RoleAdmin: All,
	}
}

// Engine answers permission queries from an immutable table built at construction
type Engine struct {
	roles map[users.Role]map[Permission]struct{}
}

// NewEngine builds the storefront's default role table
func NewEngine() *Engine {
	return NewEngineWithRoles(defaultRoles())
}

// NewEngineWithRoles builds an engine from an explicit table. The input is copied.
func NewEngineWithRoles(table map[users.Role][]Permission) *Engine {
	e := &Engine{roles: make(map[users.Role]map[Permission]struct{}, len(table))}
	for role, perms := range table {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		e.roles[role] = set
	}
	return e
}

// Has reports whether role grants perm. Unknown roles grant nothing.
func (e *Engine) Has(role users.Role, perm Permission) bool {
	set, ok := e.roles[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// HasAny is false for an empty list
func (e *Engine) HasAny(role users.Role, perms ...Permission) bool {
	for _, p := range perms {
		if e.Has(role, p) {
			return true
		}
	}
	return false
}

// HasAll is true for an empty list only when the role is known
func (e *Engine) HasAll(role users.Role, perms ...Permission) bool {
	if _, ok := e.roles[role]; !ok {
		return false
	}
	for _, p := range perms {
		if !e.Has(role, p) {
			return false
		}
	}
	return true
}

// Permissions returns a sorted copy of the role's permissions
func (e *Engine) Permissions(role users.Role) []Permission {
	set := e.roles[role]
	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}
