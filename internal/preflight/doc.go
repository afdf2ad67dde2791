// Package preflight provides readiness checks for the filesystem paths
// and worker dependencies that Treadmark depends on.
//
// These checks run in two contexts:
//   - The CLI "treadmark config check" command runs RunAll to report whether
//     the configured directories and Python workers are usable before the
//     daemon is ever started.
//   - The CLI "treadmark status" command uses individual check functions
//     (CheckSystemDeps, CheckDirectoryAccess) to display daemon health.
package preflight
