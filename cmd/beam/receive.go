package main

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/beam/internal/config"
	"github.com/1ureka/beam/internal/protocol"
	"github.com/1ureka/beam/internal/session"
	"github.com/1ureka/beam/internal/util"
)

// Files at least this large default to streaming when asked interactively.
const streamHint = 256 << 20

func receiveCmd() *cobra.Command {
	var (
		password string
		outDir   string
		stream   bool
		replies  []string
		relayURL string
	)

	cmd := &cobra.Command{
		Use:   "receive LINK",
		Short: "Join a share link and save the incoming files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := config.ClientFromEnv(config.DefaultClient())
			if cmd.Flags().Changed("relay") {
				cfg.RelayURL = relayURL
			}
			cfg.OutputDir = outDir
			cfg.Stream = stream

			back := make([]session.File, 0, len(replies))
			for _, path := range replies {
				f, err := readFile(path)
				if err != nil {
					return err
				}
				back = append(back, f)
			}

			scfg := session.NewConfig(cfg)
			if !cmd.Flags().Changed("stream") && interactive() {
				scfg.ChooseSink = func(meta protocol.Metadata) (session.Sink, error) {
					q := "Stream " + meta.Name + " (" + size(meta.Size) + ") straight to disk?"
					if !confirm(q, meta.Size >= streamHint) {
						return nil, nil
					}
					sink, err := session.NewFileSink(cfg.OutputDir, meta)
					if err != nil {
						return nil, err
					}
					return sink, nil
				}
			}
			scfg.Deliver = func(f session.File) error {
				if f.Data == nil {
					util.LogSuccess("saved %s", f.Path)
					return nil
				}
				path, err := session.SaveFile(cfg.OutputDir, f)
				if err != nil {
					return err
				}
				util.LogSuccess("saved %s (%s)", path, describe(f.Data))
				return nil
			}

			r := session.NewReceiver(scfg)
			defer r.Reset()

			if debugMode {
				util.StartStatsReporter(ctx)
			}

			if err := r.Join(ctx, args[0], password); err != nil {
				return err
			}
			if r.Status().State == session.StateAwaitingPassword {
				pw, err := askPassword("This link is password protected")
				if err != nil {
					return err
				}
				if err := r.Unlock(ctx, pw); err != nil {
					return err
				}
			}

			st, err := connect(ctx, r)
			if cancelled(err) {
				return nil
			}
			if st.State == session.StateError {
				return sessionError(st)
			}

			st, err = follow(ctx, r, session.Status.Terminal)
			if cancelled(err) {
				return nil
			}
			if st.State == session.StateError {
				return sessionError(st)
			}

			for _, f := range back {
				errc := make(chan error, 1)
				go func() { errc <- r.SendFile(ctx, f) }()
				if err := track(ctx, r, f.Name, errc); err != nil {
					if cancelled(err) {
						return nil
					}
					return err
				}
				util.LogSuccess("sent %s (%s)", f.Name, describe(f.Data))
			}

			st, err = follow(ctx, r, func(st session.Status) bool {
				return st.State == session.StateError || (st.State == session.StateReady && !st.Connected)
			})
			switch {
			case cancelled(err):
				return nil
			case st.State == session.StateError:
				return sessionError(st)
			}
			util.LogInfo("sender disconnected")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&password, "password", "p", "", "password for a protected link (prompted when omitted)")
	flags.StringVarP(&outDir, "out", "o", ".", "directory to save received files in")
	flags.BoolVar(&stream, "stream", false, "write incoming ciphertext to disk instead of memory")
	flags.StringSliceVar(&replies, "reply", nil, "files to send back once the first file arrives")
	flags.StringVar(&relayURL, "relay", "", "relay WebSocket URL (default $BEAM_RELAY_URL or ws://localhost:3001/ws)")
	return cmd
}

// connect waits with a spinner until the first file starts arriving.
func connect(ctx context.Context, r *session.Receiver) (session.Status, error) {
	spinner, _ := pterm.DefaultSpinner.Start("Connecting to room " + r.Status().RoomID)
	st, err := r.Await(ctx, func(st session.Status) bool {
		return st.State != session.StateConnecting
	})
	if spinner != nil {
		if err == nil && st.State != session.StateError {
			spinner.Success("Connected")
		} else {
			spinner.Stop()
		}
	}
	return st, err
}
