package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/batch"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/display"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/draft"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/submit"
)

var (
	downloadAfterSubmit bool
	batchWorkers        int64
	batchReport         string
)

var submitCmd = &cobra.Command{
	Use:   "submit <draft>...",
	Short: "Generate invoices from drafts",
	Long: "Generates one invoice per draft. With several drafts they are submitted " +
		"concurrently, each through its own form, and an optional CSV report is written.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		printer := display.NewPrinter(cmd.OutOrStdout())

		if len(args) == 1 && batchReport == "" {
			res := submitDraft(ctx, args[0], printer.Notice)
			if res.Err != nil {
				return fmt.Errorf("submit: %w", res.Err)
			}
			printer.Println(fmt.Sprintf("Invoice %s", res.Filename))
			if res.Path != "" {
				printer.Println(fmt.Sprintf("Saved %s", res.Path))
			}
			return nil
		}

		progress := cmd.ErrOrStderr()
		if noProgress {
			progress = nil
		}
		runner, err := batch.NewRunner(tracer, logger, meter, batchWorkers, progress)
		if err != nil {
			return err
		}
		results := runner.Run(ctx, args, func(ctx context.Context, path string) batch.Result {
			return submitDraft(ctx, path, nil, submit.WithProgress(nil))
		})
		for _, r := range results {
			if r.Err != nil {
				printer.Notice(submit.Notice{Kind: submit.NoticeError, Message: fmt.Sprintf("%s: %v", r.Draft, r.Err)})
				continue
			}
			printer.Notice(submit.Notice{Kind: submit.NoticeSuccess, Message: fmt.Sprintf("%s: %s", r.Draft, r.Filename)})
		}
		if batchReport != "" {
			if err := batch.WriteReport(batchReport, results); err != nil {
				return err
			}
		}
		printer.Println(batch.Summary(results))
		if n := batch.Failed(results); n > 0 {
			return fmt.Errorf("%d of %d drafts failed", n, len(results))
		}
		return nil
	},
}

// submitDraft runs one draft through a fresh form and controller.
func submitDraft(
	ctx context.Context,
	path string,
	notify func(submit.Notice),
	opts ...submit.Option,
) batch.Result {
	res := batch.Result{Draft: path}
	d, err := draft.Load(path)
	if err != nil {
		res.Err = err
		return res
	}
	f := services.NewForm()
	if err := d.Apply(f); err != nil {
		res.Err = err
		return res
	}
	res.Total = f.PreviewTotals().Formatted().Total

	controller := services.NewController(f, notify, opts...)
	result, err := controller.Submit(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	res.Filename = result.Filename
	if url, ok := controller.DownloadURL(); ok && notify != nil {
		notify(submit.Notice{Kind: submit.NoticeSuccess, Message: url})
	}

	if downloadAfterSubmit {
		res.Path, res.Err = controller.Download(ctx)
	}
	return res
}

func init() {
	submitCmd.Flags().BoolVar(&downloadAfterSubmit, "download", false, "Download each invoice once generated")
	submitCmd.Flags().Int64Var(&batchWorkers, "workers", 4, "Drafts submitted at the same time")
	submitCmd.Flags().StringVar(&batchReport, "report", "", "Write a CSV report of the submissions")
}
