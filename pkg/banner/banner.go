package banner

import "fmt"

const banner = `
██╗  ██╗██╗███████╗████████╗ ██████╗ ██████╗ ██╗   ██╗██████╗ ██████╗
██║  ██║██║██╔════╝╚══██╔══╝██╔═══██╗██╔══██╗╚██╗ ██╔╝██╔══██╗██╔══██╗
███████║██║███████╗   ██║   ██║   ██║██████╔╝ ╚████╔╝ ██║  ██║██████╔╝
██╔══██║██║╚════██║   ██║   ██║   ██║██╔══██╗  ╚██╔╝  ██║  ██║██╔══██╗
██║  ██║██║███████║   ██║   ╚██████╔╝██║  ██║   ██║   ██████╔╝██████╔╝
╚═╝  ╚═╝╚═╝╚══════╝   ╚═╝    ╚═════╝ ╚═╝  ╚═╝   ╚═╝   ╚═════╝ ╚═════╝
`

// Print writes the startup banner and effective runtime settings.
func Print(dbPath, opsAddr, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("DB Path:  %s\n", dbPath)
	if opsAddr != "" {
		fmt.Printf("Ops:      %s (/metrics, /healthz, /buildinfo)\n", opsAddr)
	} else {
		fmt.Println("Ops:      disabled")
	}
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if source != "" {
		fmt.Printf("Config sources: %s\n", source)
	}
}
