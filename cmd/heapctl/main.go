// Command heapctl is a thin administrative shell over the heap
// package: it drives workloads, prints statistics, and can expose them
// for scraping. It contains no allocator logic of its own.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	heap "github.com/cznic-labs/heapd"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "heapctl",
		Short: "Administrative CLI for the heap allocator",
	}
	root.AddCommand(newStressCmd(), newStatsCmd(), newServeCmd())
	return root
}

func newStressCmd() *cobra.Command {
	var iterations, maxSize int
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Drive an allocate/deallocate workload against the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			var live []unsafe.Pointer
			for i := 0; i < iterations; i++ {
				size := rng.Intn(maxSize) + 1
				p, err := heap.Allocate(size)
				if err != nil {
					return err
				}
				live = append(live, p)
				if len(live) > 64 {
					victim := rng.Intn(len(live))
					heap.Deallocate(live[victim])
					live[victim] = live[len(live)-1]
					live = live[:len(live)-1]
				}
			}
			for _, p := range live {
				heap.Deallocate(p)
			}
			return printStats()
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 10000, "number of allocate/deallocate operations")
	cmd.Flags().IntVar(&maxSize, "max-size", 1024, "maximum request size in bytes")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the current process's heap statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStats()
		},
	}
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose heap statistics over HTTP for Prometheus scraping",
		RunE: func(cmd *cobra.Command, args []string) error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(heap.Registry(), promhttp.HandlerOpts{}))
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address")
	return cmd
}

func printStats() error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(heap.StatsSnapshot())
}
