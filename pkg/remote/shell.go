package remote

import "strings"

// Shell is the restricted interface to the target's filesystem. There is no
// SFTP, no atomic rename, and no structured output: just command execution
// and one opaque byte-transfer primitive. Everything else in this package
// and in pkg/transfer is built from these two calls.
//
// A non-nil error means the transport itself broke (e.g. the connection
// dropped) and the command outcome is unknown. A non-zero exit code with a
// nil error means the command ran and failed.
type Shell interface {
	// ExecCmd runs a command on the target.
	ExecCmd(cmd string) (stdout, stderr string, exitCode int, err error)

	// Send copies the file at localPath to remotePath on the target. When
	// makedirs is set, the transport creates the intermediate directories
	// itself.
	Send(localPath, remotePath string, makedirs bool) (stdout, stderr string, exitCode int, err error)
}

// Quote returns `s` quoted for use as a single word in a remote shell
// command.
func Quote(s string) string {
	return "'" + strings.Replace(s, "'", `'"'"'`, -1) + "'"
}
