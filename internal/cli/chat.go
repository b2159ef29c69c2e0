package cli

import (
	"os"

	"resumetailor/internal/common"
	"resumetailor/internal/errors"
	"resumetailor/internal/session"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive resume tailoring conversation",
	Long: `Start a conversation in the terminal. Paste your resume, then the job
posting, answer whether you want a Word document, and keep sending edit
instructions. Type "New Resume" to start over and /help for commands.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		if chatFormat == "" {
			chatFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(chatFormat, cfg.App.SupportedFormats)
	},
	RunE: runChat,
}

var (
	chatFormat  string
	chatVerbose bool
)

func init() {
	chatCmd.Flags().StringVar(&chatFormat, "format", "", "Transcript format for /save when the extension does not decide")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "Log at the configured level instead of warnings only")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())

	// Logs go to stderr so they do not interleave with the conversation.
	level := "warn"
	if chatVerbose {
		level = cfg.App.LogLevel
	}
	logger, err := errors.NewWithWriter(level, os.Stderr)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	r := &repl{
		lines:   newLineReader(cmd.InOrStdin()),
		out:     cmd.OutOrStdout(),
		engine:  a.engine,
		files:   common.NewFileProcessor(cfg.App.MaxFileSize, logger),
		output:  common.NewOutputHandler(logger).WithStdout(cmd.OutOrStdout()),
		botName: cfg.App.BotName,
		format:  chatFormat,
		logger:  logger,
	}
	return r.Run(cmd.Context(), session.New())
}
