// CLI for remix analysis and playback visualization.
package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/beatgraph/remixatron/pkg/engine"
	"github.com/beatgraph/remixatron/pkg/server"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "app",
	Short: "Remix analysis and visualization",
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <directory>",
	Short: "Analyze audio files and create remix JSON sidecars",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		clusters, _ := cmd.Flags().GetInt("clusters")
		seed, _ := cmd.Flags().GetInt64("seed")
		return runAnalyze(args[0], force, clusters, seed)
	},
}

var remixCmd = &cobra.Command{
	Use:   "remix <file>",
	Short: "Compute a remix play vector for a single audio file and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clusters, _ := cmd.Flags().GetInt("clusters")
		seed, _ := cmd.Flags().GetInt64("seed")
		v1, _ := cmd.Flags().GetBool("v1-clustering")
		return runRemix(args[0], clusters, seed, v1)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web server on :8080",
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Run()
	},
}

func init() {
	analyzeCmd.Flags().BoolP("force", "f", false, "force re-analysis even if a sidecar JSON exists")
	analyzeCmd.Flags().Int("clusters", 0, "fix the cluster count instead of auto-selecting")
	analyzeCmd.Flags().Int64("seed", 0, "play-vector PRNG seed (0 draws a random seed)")

	remixCmd.Flags().Int("clusters", 0, "fix the cluster count instead of auto-selecting")
	remixCmd.Flags().Int64("seed", 0, "play-vector PRNG seed (0 draws a random seed)")
	remixCmd.Flags().Bool("v1-clustering", false, "use the deprecated ascending-even-k cluster selector")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(remixCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRemix(path string, clusters int, seed int64, v1 bool) error {
	e := engine.New(engine.Config{
		Clusters:        clusters,
		Seed:            seed,
		UseV1Clustering: v1,
		ProgressCallback: func(fraction float64, message string) {
			fmt.Fprintf(os.Stderr, "[%3.0f%%] %s\n", fraction*100, message)
		},
	})

	out, err := e.Run(path)
	if err != nil {
		return fmt.Errorf("remix %s: %w", path, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runAnalyze(dir string, force bool, clusters int, seed int64) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !isAudioFile(strings.ToLower(filepath.Ext(path))) {
			return nil
		}

		sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".remix.json"
		if !force {
			if _, statErr := os.Stat(sidecar); statErr == nil {
				return nil
			}
		}

		e := engine.New(engine.Config{Clusters: clusters, Seed: seed})
		out, err := e.Run(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", path, err)
			return nil
		}

		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		if err := os.WriteFile(sidecar, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", sidecar, err)
		}
		fmt.Printf("wrote %s (clusters=%d, beats=%d)\n", sidecar, out.Clusters, len(out.Beats))
		return nil
	})
}

func isAudioFile(ext string) bool {
	switch ext {
	case ".mp3", ".wav", ".flac":
		return true
	default:
		return false
	}
}
