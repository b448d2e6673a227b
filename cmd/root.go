package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/sshcp-v1/cmd/cp"
	"github.com/sidkik/sshcp-v1/cmd/util"
	"github.com/sidkik/sshcp-v1/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "SSHCP_LOG_VERBOSE"

// logFileKey is the environment variable that enables mirroring logs into a
// rotating file.
const logFileKey = "SSHCP_LOG_FILE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}
	if logFile := os.Getenv(logFileKey); logFile != "" {
		util.SetupLogFile(logFile)
	}

	rootCmd := &cobra.Command{
		Use:          "sshcp",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(version.New())
	rootCmd.AddCommand(cp.New()...)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
