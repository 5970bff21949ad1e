// Package diagnostics implements the environment checks behind the doctor
// command. It verifies the configuration, the upstream provider credentials
// and reachability, the run-history store, and host resources, reporting each
// as an ok/warn/fail check so operators can see what a failing run needs.
package diagnostics
