// Package ci is a simple utility to check if cuenv is executing in a
// CI/CD environment, used by internal/ui to decide whether interactive
// terminal features should be disabled.
package ci

import "os"

var isCI = os.Getenv("BUILD_ID") != "" || os.Getenv("BUILD_NUMBER") != "" || os.Getenv("CI") != "" || os.Getenv("CI_APP_ID") != "" || os.Getenv("CI_BUILD_ID") != "" || os.Getenv("CI_BUILD_NUMBER") != "" || os.Getenv("CI_NAME") != "" || os.Getenv("CONTINUOUS_INTEGRATION") != "" || os.Getenv("RUN_ID") != "" || os.Getenv("TEAMCITY_VERSION") != ""

// IsCi reports whether the program is executing in a CI/CD environment.
func IsCi() bool {
	return isCI
}
