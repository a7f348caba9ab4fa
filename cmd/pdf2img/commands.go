package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/yourusername/pdf2img/internal/client"
	"github.com/yourusername/pdf2img/internal/conversion"
)

// errConversionFailed は変換が FAILED で終わったことを表します。
var errConversionFailed = errors.New("conversion failed")

func (o *cliOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func newConvertCmd(opts *cliOptions) *cobra.Command {
	var (
		outDir   string
		asZip    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "convert <file.pdf>",
		Short: "PDF を投入し、完了を待ってページ画像を保存する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			record, err := opts.api.Submit(ctx, args[0], data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted %s (%s)\n", record.ID, record.Filename)

			final, err := waitWithSpinner(ctx, opts, record.ID, interval)
			if err != nil {
				return err
			}
			if final.Status == conversion.StatusFailed {
				return fmt.Errorf("%s: %w", final.ID, errConversionFailed)
			}

			if asZip {
				path, err := saveArchive(ctx, opts.api, final.ID, outDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
				return nil
			}
			results, err := opts.api.Results(ctx, final.ID)
			if err != nil {
				return err
			}
			dir := filepath.Join(outDir, final.ID)
			if err := writePages(dir, results.Images); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d pages to %s\n", len(results.Images), dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "出力先ディレクトリ")
	cmd.Flags().BoolVar(&asZip, "zip", false, "ページ画像を zip でまとめて保存する")
	cmd.Flags().DurationVar(&interval, "interval", client.DefaultPollInterval, "ステータス確認の間隔")
	return cmd
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "変換のステータスを表示する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			record, err := opts.api.Get(ctx, args[0])
			if err != nil {
				return err
			}
			printRecords(cmd, []conversion.Conversion{*record})
			return nil
		},
	}
}

func newListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "すべての変換を開始日時の新しい順に表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			records, err := opts.api.List(ctx)
			if err != nil {
				return err
			}
			printRecords(cmd, records)
			return nil
		},
	}
}

func newResultsCmd(opts *cliOptions) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "完了した変換のページ画像を保存する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			results, err := opts.api.Results(ctx, args[0])
			if err != nil {
				return err
			}
			dir := filepath.Join(outDir, results.ID)
			if err := writePages(dir, results.Images); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d pages to %s\n", len(results.Images), dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "出力先ディレクトリ")
	return cmd
}

func newArchiveCmd(opts *cliOptions) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "完了した変換のページ画像を zip で保存する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			path, err := saveArchive(ctx, opts.api, args[0], outDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "出力先ディレクトリ")
	return cmd
}

func waitWithSpinner(ctx context.Context, opts *cliOptions, id string, interval time.Duration) (*conversion.Conversion, error) {
	if opts.quiet {
		return opts.api.Wait(ctx, id, interval, nil)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " converting " + id
	s.Start()
	defer s.Stop()

	started := time.Now()
	return opts.api.Wait(ctx, id, interval, func(record *conversion.Conversion) {
		s.Suffix = fmt.Sprintf(" %s %s (%s)", record.Status, id, time.Since(started).Truncate(time.Second))
	})
}

func printRecords(cmd *cobra.Command, records []conversion.Conversion) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILENAME\tSTATUS\tSTART DATE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Filename, r.Status, r.StartDate.Local().Format(time.DateTime))
	}
	_ = w.Flush()
}
