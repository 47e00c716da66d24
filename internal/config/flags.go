package config

import (
	"flag"
	"os"

	"github.com/lyceum-cloud/uplink/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   base URL of the storage API (default from Config)
//	-d string   DSN of the local task store
//	-n int      maximum concurrent uploads
//
// Args are pre-filtered with flagx.FilterArgs so flags owned by other
// components do not trip the parser.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-n"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "base URL of the storage API")
	fs.StringVar(&cfg.StateDSN, "d", cfg.StateDSN, "DSN of the local task store")
	fs.IntVar(&cfg.MaxConcurrent, "n", cfg.MaxConcurrent, "maximum concurrent uploads")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
