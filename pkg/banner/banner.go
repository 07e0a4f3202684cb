package banner

import (
	"fmt"
)

const banner = `
███╗   ███╗███████╗███████╗███████╗███████╗███╗   ██╗ ██████╗ ███████╗██████╗ ██████╗ ██████╗
████╗ ████║██╔════╝██╔════╝██╔════╝██╔════╝████╗  ██║██╔════╝ ██╔════╝██╔══██╗██╔══██╗██╔══██╗
██╔████╔██║█████╗  ███████╗███████╗█████╗  ██╔██╗ ██║██║  ███╗█████╗  ██████╔╝██║  ██║██████╔╝
██║╚██╔╝██║██╔══╝  ╚════██║╚════██║██╔══╝  ██║╚██╗██║██║   ██║██╔══╝  ██╔══██╗██║  ██║██╔══██╗
██║ ╚═╝ ██║███████╗███████║███████║███████╗██║ ╚████║╚██████╔╝███████╗██║  ██║██████╔╝██████╔╝
╚═╝     ╚═╝╚══════╝╚══════╝╚══════╝╚══════╝╚═╝  ╚═══╝ ╚═════╝ ╚══════╝╚═╝  ╚═╝╚═════╝ ╚═════╝
`

// Print renders the startup banner with runtime info and a short endpoint
// summary for operators.
func Print(addr, dbPath, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/conversations - Create a conversation (JSON: participant_ids)")
	fmt.Println("POST /v1/conversations/{id}/messages - Send a message (JSON: sender_id, text, client_token)")
	fmt.Println("GET  /v1/conversations/{id}/messages?limit=<n>&cursor=<c> - Scrollback, newest first")
	fmt.Println("GET  /v1/users/{id}/conversations?limit=<n>&cursor=<c> - Conversation list")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/conversations' -d '{\"participant_ids\": [\"u1\",\"u2\"]}'\n", addr)
	fmt.Printf("curl 'http://localhost%s/v1/users/u1/conversations?limit=10'\n", addr)
}
