// Package session holds the bounded table of execution sessions.
//
// The table keeps the session record (see core.Session) plus the execution
// history of each run. Finished sessions expire after a TTL and the table is
// capped; when full the oldest finished sessions are evicted first. Running
// sessions are never evicted.
package session
