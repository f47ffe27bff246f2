// Package transport moves files between hosts. The idea is
// that the placement controller only needs "put this file at
// that path on that host", so the mechanism can change from
// scp to something else without touching the migration code.
package transport
