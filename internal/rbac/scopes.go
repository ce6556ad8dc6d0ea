package rbac

// Core platform permissions.
const (
	PermShipmentsRead   = "shipments:read"
	PermShipmentsWrite  = "shipments:write"
	PermShipmentsManage = "shipments:manage"

	PermInvoicesRead   = "invoices:read"
	PermInvoicesWrite  = "invoices:write"
	PermInvoicesManage = "invoices:manage"

	PermCustomersRead   = "customers:read"
	PermCustomersWrite  = "customers:write"
	PermCustomersManage = "customers:manage"

	PermSupportRead   = "support:read"
	PermSupportWrite  = "support:write"
	PermSupportManage = "support:manage"

	PermRolesRead   = "roles:read"
	PermRolesManage = "roles:manage"
)

// Seeded role names.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

// CorePermissions lists every permission the platform seeds.
func CorePermissions() []string {
	return []string{
		PermShipmentsRead, PermShipmentsWrite, PermShipmentsManage,
		PermInvoicesRead, PermInvoicesWrite, PermInvoicesManage,
		PermCustomersRead, PermCustomersWrite, PermCustomersManage,
		PermSupportRead, PermSupportWrite, PermSupportManage,
		PermRolesRead, PermRolesManage,
	}
}

// SystemRoles maps each seeded role to its default permissions.
func SystemRoles() map[string][]string {
	return map[string][]string{
		RoleAdmin: {
			PermShipmentsManage, PermInvoicesManage, PermCustomersManage,
			PermSupportManage, PermRolesManage,
		},
		RoleManager: {
			PermShipmentsManage, PermInvoicesRead, PermCustomersRead,
			PermSupportManage, PermRolesRead,
		},
		RoleStaff: {
			PermShipmentsRead, PermShipmentsWrite, PermCustomersRead,
			PermSupportRead, PermSupportWrite,
		},
	}
}
