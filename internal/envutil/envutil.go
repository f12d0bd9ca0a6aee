package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the runtime mode
const EnvVar = "ATWEET_ENV"

// Mode returns "development" when ATWEET_ENV is dev or development, "production" otherwise
func Mode() string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvVar))) {
	case "development", "dev":
		return "development"
	default:
		return "production"
	}
}

// IsDev reports whether security settings such as Secure cookies and TLS
// verification may be relaxed for local testing
func IsDev() bool {
	return Mode() == "development"
}
