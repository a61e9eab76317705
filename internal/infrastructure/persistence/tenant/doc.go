// Package tenant routes every operation to the database that holds the caller's data.
//
// Each tenant lives in its own logical database on a shared server. A Resolver maps a
// caller (role + tenant id) to a database id, a Pool keeps one GORM handle per database
// id, and a Context ties both together for the duration of one request or job:
//
//	tc := tenant.NewContext(caller, resolver, pool)
//	ctx = tenant.WithContext(ctx, tc)
//	db, err := tc.DB(ctx) // resolved once, then acquired from the pool
package tenant
