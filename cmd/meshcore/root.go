package main

import (
	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "meshcore",
		Short: "Mesh VPN client data plane",
		Long: `meshcore connects to a mesh VPN coordination server over an encrypted
TCP control channel, maintains a peer roster, and forwards IP packets
to other clients either directly over UDP/IPv6 or relayed through the
server.`,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(clientCmd())
	return root
}
