// Package core implements the core functionality for hookhost that is shared across all components.
package core

import "fmt"

const (
	MaintainerLink    = "https://github.com/dorcha-inc/hookhost/blob/main/MAINTAINERS.md"
	BugReportTemplate = "\n\n[NOTE]This is most likely a bug in hookhost, please reach out to the maintainers at %s"
)

func BugReportMessage() string {
	return fmt.Sprintf(BugReportTemplate, MaintainerLink)
}

const (
	GOOSDarwin  = "darwin"
	GOOSLinux   = "linux"
	GOOSWindows = "windows"
)

// HostVersion is the version of the plugin protocol spoken by this host.
// Plugins may require a minimum host version in their manifest.
const HostVersion = "v0.3.0"

// HomeDirName is the per-user directory holding config and plugins.
const HomeDirName = ".hookhost"
