package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jxwalker/docfetch/internal/coordinator"
	"github.com/jxwalker/docfetch/internal/projection"
)

type syncSummary struct {
	Layers     int
	Downloaded int
	Bytes      int64
}

func newSyncCmd(f *rootFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync [document-id...]",
		Short: "Refresh the document list and download every listed layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			log := f.logger(cfg, cmd.ErrOrStderr())
			s, err := openStack(cfg, log, true)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			start := time.Now()
			sum, err := runSync(ctx, s, args)
			if err != nil {
				return err
			}
			snap := s.metrics.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d/%d layers (%s) in %s; token fetches=%d failed=%d revoked=%d\n",
				sum.Downloaded, sum.Layers, humanize.Bytes(uint64(sum.Bytes)),
				time.Since(start).Round(time.Millisecond),
				snap.TokenFetches, snap.DownloadsFailed, snap.Revocations)
			if sum.Downloaded < sum.Layers {
				return fmt.Errorf("%d layer(s) could not be downloaded", sum.Layers-sum.Downloaded)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits until every layer settles)")
	return cmd
}

// runSync drives one refresh and a download of every matching row on a
// headless coordinator loop, returning once the coordinator is idle.
func runSync(ctx context.Context, s *stack, only []string) (syncSummary, error) {
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loop := coordinator.NewLoop()
	coord := s.coordinator(loopCtx, loop)

	want := make(map[string]bool, len(only))
	for _, id := range only {
		want[id] = true
	}

	var sum syncSummary
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		if err := loop.Run(gctx); err != nil && ctx.Err() != nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer stopLoop()
		refreshed := make(chan error, 1)
		err := loop.Do(gctx, func() {
			coord.SetOnRefreshDone(func(err error) {
				select {
				case refreshed <- err:
				default:
				}
			})
			coord.Refresh()
		})
		if err != nil {
			return err
		}
		select {
		case err := <-refreshed:
			if err != nil {
				return err
			}
		case <-gctx.Done():
			return gctx.Err()
		}

		err = loop.Do(gctx, func() {
			coord.Projection().Each(func(_ projection.Position, sec projection.Section, row projection.Row) bool {
				if len(want) == 0 || want[sec.DocumentID] {
					coord.EnsureDownloadStarted(row.Descriptor)
				}
				return true
			})
		})
		if err != nil {
			return err
		}

		tick := time.NewTicker(200 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-tick.C:
			}
			idle := false
			if err := loop.Do(gctx, func() { idle = coord.Idle() }); err != nil {
				return err
			}
			if !idle {
				continue
			}
			return loop.Do(gctx, func() {
				sum = syncSummary{}
				coord.Projection().Each(func(_ projection.Position, sec projection.Section, row projection.Row) bool {
					if len(want) > 0 && !want[sec.DocumentID] {
						return true
					}
					sum.Layers++
					if s.eng.IsDownloaded(row.Descriptor) {
						sum.Downloaded++
						if n, ok := s.eng.StatSize(row.Descriptor); ok {
							sum.Bytes += n
						}
					}
					return true
				})
			})
		}
	})
	err := g.Wait()
	return sum, err
}
