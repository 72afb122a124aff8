package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jxwalker/docfetch/internal/logging"
	"github.com/jxwalker/docfetch/internal/projection"
)

type layerStatus struct {
	DocumentID string `json:"document_id"`
	Document   string `json:"document"`
	Layer      string `json:"layer"`
	Downloaded bool   `json:"downloaded"`
	Size       int64  `json:"size,omitempty"`
}

func newListCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents and layers from the backend with their local state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			log := f.logger(cfg, cmd.ErrOrStderr())
			s, err := openStack(cfg, log, false)
			if err != nil {
				return err
			}
			defer s.Close()

			docs, err := s.api.FetchDocumentList(cmd.Context())
			if err != nil {
				return err
			}
			var out []layerStatus
			for _, doc := range docs {
				for _, tok := range doc.Tokens {
					d, err := s.eng.DescriptorForToken(tok)
					if err != nil {
						log.Warnf("skipping token %s of document %s: %v", logging.RedactToken(tok), doc.ID, err)
						continue
					}
					st := layerStatus{DocumentID: doc.ID, Document: doc.Title, Layer: d.LayerName(), Downloaded: s.eng.IsDownloaded(d)}
					if st.Downloaded {
						st.Size, _ = s.eng.StatSize(d)
					}
					out = append(out, st)
				}
			}

			if f.jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			if len(out) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents found. Upload a document to the backend and try again.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOCUMENT\tLAYER\tSTATE\tSIZE")
			for _, st := range out {
				layer := st.Layer
				if layer == "" {
					layer = projection.DefaultLayerTitle
				}
				state, size := "remote", "-"
				if st.Downloaded {
					state, size = "local", humanize.Bytes(uint64(st.Size))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Document, layer, state, size)
			}
			return tw.Flush()
		},
	}
}

