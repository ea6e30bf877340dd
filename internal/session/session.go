// Package session persists the reauthentication credential issued at login
// and replays it on every fresh connection so that a logged-in session is
// restored without prompting for the password again.
package session
