package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jxwalker/docfetch/internal/sample"
)

type serveFlags struct {
	backendAddr string
	engineAddr  string
	seed        string
	userID      string
	password    string
}

func newServeSampleCmd(f *rootFlags) *cobra.Command {
	sf := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve-sample",
		Short: "Run the sample backend and engine servers for local use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := f.logger(nil, cmd.ErrOrStderr())
			docs := sample.DefaultDocuments()
			if sf.seed != "" {
				var err error
				if docs, err = sample.LoadSeed(sf.seed); err != nil {
					return err
				}
			}
			srv := sample.NewServer(sf.userID, sf.password, log)
			for _, d := range docs {
				srv.AddDocument(d)
			}
			type listener struct {
				name string
				ln   net.Listener
				h    http.Handler
			}
			var listeners []listener
			for _, l := range []listener{
				{name: "backend", h: srv.BackendHandler()},
				{name: "engine", h: srv.EngineHandler()},
			} {
				addr := sf.backendAddr
				if l.name == "engine" {
					addr = sf.engineAddr
				}
				ln, err := net.Listen("tcp", addr)
				if err != nil {
					for _, open := range listeners {
						_ = open.ln.Close()
					}
					return err
				}
				l.ln = ln
				listeners = append(listeners, l)
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			for _, l := range listeners {
				hs := &http.Server{Handler: l.h, ReadHeaderTimeout: 10 * time.Second}
				log.Infof("sample %s listening on http://%s/", l.name, l.ln.Addr())
				g.Go(func() error {
					if err := hs.Serve(l.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return hs.Shutdown(shutdownCtx)
				})
			}
			log.Infof("serving %d document(s) for user %q", len(docs), sf.userID)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&sf.backendAddr, "backend-addr", "127.0.0.1:3000", "listen address of the document backend")
	cmd.Flags().StringVar(&sf.engineAddr, "engine-addr", "127.0.0.1:5000", "listen address of the engine server")
	cmd.Flags().StringVar(&sf.seed, "seed", "", "YAML file with the documents to serve")
	cmd.Flags().StringVar(&sf.userID, "user", "test", "Basic auth user the backend accepts")
	cmd.Flags().StringVar(&sf.password, "password", "", "Basic auth password the backend accepts")
	return cmd
}
