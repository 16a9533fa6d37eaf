package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xhad/multibot/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API and websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := newPlatform(ctx, opts.config)
			if err != nil {
				return err
			}
			defer p.Close()

			if addr == "" {
				addr = opts.config.Server.Addr
			}
			srv := server.New(p.bot, p.loader, server.Config{
				Addr:     addr,
				Scraper:  p.scraperConfig(),
				Chunking: p.chunkConfig(),
			})
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}
