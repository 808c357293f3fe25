// Diagnostic tool for inspecting multi-extension containers
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robert-malhotra/go-mef/mef"
)

var (
	verbose bool
	noMmap  bool
)

// instrumentClass tags every source that names its instrument.
var instrumentClass = mef.NewClass("Instrument", mef.Generic, func(src *mef.Source) (bool, error) {
	return src.PHU().Has("INSTRUME"), nil
}).WithTagRules(mef.TagRule{Name: "instrument", Eval: func(d *mef.Dataset) (mef.TagSet, error) {
	inst, err := d.Instrument()
	if err != nil {
		return mef.TagSet{}, err
	}
	return mef.Tags(strings.ToUpper(inst)), nil
}})

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mefdiag",
		Short:         "Inspect and rewrite multi-extension containers",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !verbose {
				return nil
			}
			l, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			mef.SetLogger(l)
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log warnings and debug messages")
	root.PersistentFlags().BoolVar(&noMmap, "no-mmap", false, "read payloads into memory instead of mapping the file")
	root.AddCommand(infoCmd(), tagsCmd(), recordsCmd(), copyCmd(), digestCmd())
	return root
}

func open(path string) (*mef.Dataset, error) {
	r, err := mef.NewRegistry(instrumentClass)
	if err != nil {
		return nil, err
	}
	return r.Open(path, mef.WithMemmap(!noMmap), mef.WithLogger(mef.Logger()))
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Summarize units and tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open(args[0])
			if err != nil {
				return err
			}
			defer d.Close()
			return d.Info(cmd.OutOrStdout())
		},
	}
}

func tagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags <file>...",
		Short: "Print the resolved tags of each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				d, err := open(path)
				if err != nil {
					return err
				}
				tags, err := d.Tags()
				d.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, strings.Join(tags, " "))
			}
			return nil
		},
	}
}

// recordsCmd lists the records the dataset would be written as, with
// the keywords of each header.
func recordsCmd() *cobra.Command {
	var showCards bool
	cmd := &cobra.Command{
		Use:   "records <file>",
		Short: "List the records of a file in write order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open(args[0])
			if err != nil {
				return err
			}
			defer d.Close()

			recs, err := mef.ToRecords(d)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, r := range recs {
				fmt.Fprintf(out, "[%d] %s  %d cards\n", i, r, r.Header.Len())
				if !showCards {
					continue
				}
				for _, c := range r.Header.Cards() {
					fmt.Fprintf(out, "      %-8s = %v\n", c.Key, c.Value)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showCards, "cards", false, "print every header card")
	return cmd
}

func copyCmd() *cobra.Command {
	var (
		compress   string
		overwrite  bool
		noChecksum bool
	)
	cmd := &cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "Rewrite a file, optionally re-encoding its payloads",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open(args[0])
			if err != nil {
				return err
			}
			defer d.Close()

			opts := []mef.WriteOption{mef.WithWriteLogger(mef.Logger())}
			if compress != "" {
				opts = append(opts, mef.WithCompression(compress))
			}
			if overwrite {
				opts = append(opts, mef.WithOverwrite())
			}
			if noChecksum {
				opts = append(opts, mef.WithoutChecksums())
			}
			if err := mef.WriteFile(d, args[1], opts...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d units)\n", args[1], d.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&compress, "compress", "", `payload filter pipeline, e.g. "shuffle,zstd"`)
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing destination")
	cmd.Flags().BoolVar(&noChecksum, "no-checksum", false, "do not write DATAHASH keywords")
	return cmd
}

func digestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest <file>...",
		Short: "Print the BLAKE3 digest used in provenance records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				sum, err := mef.FileDigest(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, path)
			}
			return nil
		},
	}
}
