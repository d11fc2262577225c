// Beam sends a file straight to another machine over a WebRTC DataChannel.
// A small relay pairs the two sides by room id and forwards their connection
// setup; the file itself is AES-256-GCM encrypted and never touches the
// relay. The decryption key travels in the share link's fragment.
//
//	beam relay                       run the rendezvous relay
//	beam send FILE...                share files and print the link
//	beam receive LINK                join a share and save the files
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/beam/internal/util"
)

var version = "dev"

var debugMode bool

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := &cobra.Command{
		Use:           "beam",
		Short:         "Encrypted peer-to-peer file drop",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debugMode {
				util.EnableDebug()
			}
			pterm.Info.Printfln("Beam v%s", version)
			pterm.Println()
		},
	}
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	root.AddCommand(relayCmd(), sendCmd(), receiveCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}
