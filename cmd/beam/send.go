package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/beam/internal/config"
	"github.com/1ureka/beam/internal/session"
	"github.com/1ureka/beam/internal/util"
)

func sendCmd() *cobra.Command {
	var (
		password string
		askPass  bool
		relayURL string
		baseURL  string
		roomID   string
		outDir   string
		stay     bool
	)

	cmd := &cobra.Command{
		Use:   "send FILE...",
		Short: "Share files and print the link for the receiver",
		Long: "Encrypts the first file, registers a room on the relay and prints a share link.\n" +
			"Once the receiver connects the file is sent directly; remaining files follow\n" +
			"over the same connection.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := config.ClientFromEnv(config.DefaultClient())
			if cmd.Flags().Changed("relay") {
				cfg.RelayURL = relayURL
			}
			if cmd.Flags().Changed("base") {
				cfg.BaseURL = baseURL
			}
			cfg.OutputDir = outDir

			files := make([]session.File, 0, len(args))
			for _, path := range args {
				f, err := readFile(path)
				if err != nil {
					return err
				}
				files = append(files, f)
			}

			if askPass && password == "" {
				var err error
				if password, err = askPassword("Password for this share"); err != nil {
					return err
				}
			}

			scfg := session.NewConfig(cfg)
			scfg.RoomID = roomID
			s := session.NewSender(scfg)
			defer s.Reset()

			if debugMode {
				util.StartStatsReporter(ctx)
			}

			link, err := s.Share(ctx, files[0], password)
			if err != nil {
				return err
			}
			pterm.DefaultBox.WithTitle("Share link").Println(link)
			if password != "" {
				pterm.Info.Println("The receiver needs the password to open this link.")
			}
			pterm.Println()

			spinner, _ := pterm.DefaultSpinner.Start("Waiting for the receiver to join room " + s.Status().RoomID)
			_, err = s.Await(ctx, func(st session.Status) bool { return st.State != session.StateWaitingForPeer })
			if spinner != nil {
				spinner.Stop()
			}
			if cancelled(err) {
				return nil
			}

			st, err := follow(ctx, s, session.Status.Terminal)
			if cancelled(err) {
				return nil
			}
			if st.State == session.StateError {
				return sessionError(st)
			}
			util.LogSuccess("sent %s (%s)", files[0].Name, describe(files[0].Data))

			for _, f := range files[1:] {
				errc := make(chan error, 1)
				go func() { errc <- s.SendFile(ctx, f) }()
				if err := track(ctx, s, f.Name, errc); err != nil {
					if cancelled(err) {
						return nil
					}
					return err
				}
				util.LogSuccess("sent %s (%s)", f.Name, describe(f.Data))
			}

			if !stay {
				return nil
			}
			pterm.Info.Println("Staying connected for replies; press Ctrl+C to quit.")
			st, err = follow(ctx, s, func(st session.Status) bool {
				return !st.Connected || st.State == session.StateError
			})
			switch {
			case cancelled(err):
				return nil
			case st.State == session.StateError:
				return sessionError(st)
			}
			util.LogInfo("receiver disconnected")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&password, "password", "p", "", "protect the share with a password instead of a key in the link")
	flags.BoolVarP(&askPass, "ask-password", "P", false, "prompt for the password")
	flags.StringVar(&relayURL, "relay", "", "relay WebSocket URL (default $BEAM_RELAY_URL or ws://localhost:3001/ws)")
	flags.StringVar(&baseURL, "base", "", "prefix for share links (default $BEAM_BASE_URL or http://localhost:3000)")
	flags.StringVar(&roomID, "room", "", "room id to register (default: random)")
	flags.StringVarP(&outDir, "out", "o", ".", "where files sent back by the receiver are saved")
	flags.BoolVar(&stay, "stay", false, "stay connected after sending to receive files back")
	return cmd
}
