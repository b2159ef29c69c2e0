package cli

import (
	"fmt"

	"resumetailor/internal/common"
	"resumetailor/internal/conversation"
	"resumetailor/internal/session"
	"resumetailor/internal/types"
	"resumetailor/internal/utils"

	"github.com/spf13/cobra"
)

var tailorCmd = &cobra.Command{
	Use:   "tailor [resume-file] [job-posting-file]",
	Short: "Tailor a resume for a job posting in one run",
	Long: `Run a whole conversation non-interactively: the resume and the job posting
are read from files (.txt, .md, .pdf or .docx), the tailored resume and its
explanation are produced, and with --docx a Word document is exported to the
configured export directory. The transcript is written to stdout or --output.`,
	Args: cobra.ExactArgs(2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		if tailorConfig.OutputFormat == "" {
			tailorConfig.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(tailorConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runTailor,
}

var (
	tailorConfig common.CommandConfig
	tailorDocx   bool
)

func init() {
	tailorCmd.Flags().StringVarP(&tailorConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	tailorCmd.Flags().StringVar(&tailorConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	tailorCmd.Flags().BoolVar(&tailorDocx, "docx", false, "Export the tailored resume as a Word document")

	_ = tailorCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return cfg.App.SupportedFormats, cobra.ShellCompDirectiveNoFileComp
	})
}

func runTailor(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	contents, err := common.NewFileProcessor(cfg.App.MaxFileSize, logger).ReadFiles(args...)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	choice := "no"
	if tailorDocx {
		choice = "yes"
	}

	logger.Info("Starting resume tailoring",
		"resume_chars", len(contents[0]),
		"job_chars", len(contents[1]),
		"docx", tailorDocx,
		"output_format", tailorConfig.OutputFormat)

	s := session.New()
	var artifactPath string
	err = common.RunConversation(cmd.Context(), logger, a.engine, s,
		[]string{contents[0], contents[1], choice},
		func(ev conversation.Event) {
			if ev.Artifact != nil {
				artifactPath = ev.Artifact.Path
				logger.Info("Word document exported",
					"file", ev.Artifact.Path,
					"size", utils.FormatFileSize(ev.Artifact.Size))
			}
		})
	if err != nil {
		return fmt.Errorf("failed to tailor resume: %w", err)
	}

	transcript := types.NewTranscript(cfg.App.BotName, s.Snapshot())
	if err := common.NewOutputHandler(logger).HandleOutput(transcript, tailorConfig); err != nil {
		return err
	}

	logger.Info("Resume tailoring completed successfully", "company", s.CompanyName, "job_title", s.JobTitle, "docx", artifactPath)
	return nil
}
