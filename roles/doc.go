// Package roles answers whether a user holds the administrator role.
//
// Static keeps a fixed in-memory set. SQL queries a relational database
// through bun, either as presence in an admin_users table or as a role
// column on users.
package roles
