// Package presence implements the relay-side directory of identity
// reachability and routing handles.
//
// A routing handle is the live connection the relay can push frames to.
// At most one handle is bound per identity; a new registration for the
// same identity supersedes and closes the previous handle, matching
// device or session replacement. Directory entries are durable; handle
// bindings are not and are rebuilt on reconnect.
package presence
