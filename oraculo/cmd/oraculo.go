// Command-line client that talks to the document sessions without the HTTP layer.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"oraculo/oraculo/app"
	"oraculo/oraculo/config"
	"oraculo/oraculo/controllers"
	"oraculo/oraculo/types"
	"oraculo/oraculo/utils/color"
	"oraculo/oraculo/utils/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cliOwner owns every session created from the terminal.
const cliOwner = "cli"

var (
	docType   string
	source    string
	provider  string
	model     string
	sessionID string
	apiKey    string
)

var rootCmd = &cobra.Command{
	Use:   "oraculo",
	Short: "Chat with a document",
	Long: `Load a web page, video transcript, PDF, CSV or text file and ask
questions about it. Sessions are stored in the configured database and can
be resumed with --session.`,
	SilenceUsage: true,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start or resume a document session",
	Example: `  oraculo chat --type Site --source https://go.dev/doc --provider Groq --model llama-3.1-8b-instant
  oraculo chat --session 1f0c... --provider Groq --model llama-3.1-8b-instant`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := build()
		if err != nil {
			return err
		}
		defer a.Close()
		return runChat(cmd.Context(), a.Oraculo)
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List providers and their models",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := build()
		if err != nil {
			return err
		}
		defer a.Close()
		for _, p := range a.Oraculo.ListProviders() {
			fmt.Println(color.ColorRole(p.Name))
			for _, m := range p.Models {
				fmt.Println("  " + m)
			}
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent terminal sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := build()
		if err != nil {
			return err
		}
		defer a.Close()
		res, err := a.Oraculo.ListActive(cmd.Context(), cliOwner)
		if err != nil {
			return err
		}
		for _, c := range res.Conversations {
			fmt.Printf("%s  %-15s %s/%s  %s\n", c.SessionID, c.DocumentType, c.Provider, c.Model,
				c.UpdatedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().StringVar(&docType, "type", "", "document type: Site, VideoTranscript, PDF, CSV, PlainText")
	chatCmd.Flags().StringVar(&source, "source", "", "URL or file path of the document")
	chatCmd.Flags().StringVar(&provider, "provider", "Groq", "model provider")
	chatCmd.Flags().StringVar(&model, "model", "", "model name")
	chatCmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session")
	chatCmd.Flags().StringVar(&apiKey, "api-key", "", "provider API key (defaults to the environment)")
	chatCmd.MarkFlagRequired("model")

	rootCmd.AddCommand(chatCmd, providersCmd, sessionsCmd)
}

func build() (*app.App, error) {
	cfg := config.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return app.Build(ctx, cfg)
}

func runChat(ctx context.Context, ctrl *controllers.OraculoController) error {
	if sessionID == "" || source != "" {
		if docType == "" || source == "" {
			return fmt.Errorf("--type and --source are required for a new session")
		}
		fmt.Println(color.ColorInfo("Loading document..."))
		res, err := ctrl.Initialize(ctx, cliOwner, types.InitializeRequest{
			Provider:     provider,
			Model:        model,
			APIKey:       apiKey,
			DocumentType: docType,
			Source:       source,
			SessionID:    sessionID,
		})
		if err != nil {
			return err
		}
		sessionID = res.SessionID
		if res.WasSummarized {
			fmt.Println(color.ColorWarning("Document was long and has been summarized."))
		}
		fmt.Println(res.DocumentPreview)
	}

	fmt.Println()
	fmt.Println("Session:", sessionID)
	fmt.Println("Commands: /clear, /history [n], exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(color.ColorPrompt("oraculo> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return nil
		case line == "/clear":
			if err := ctrl.ClearHistory(ctx, cliOwner, sessionID); err != nil {
				fmt.Println(color.ColorError(err.Error()))
				continue
			}
			fmt.Println(color.ColorInfo("History cleared."))
		case strings.HasPrefix(line, "/history"):
			printHistory(ctx, ctrl, strings.TrimSpace(strings.TrimPrefix(line, "/history")))
		default:
			ask(ctx, ctrl, line)
		}
	}
	return scanner.Err()
}

// ask streams one answer; Ctrl-C abandons it without recording the exchange.
func ask(ctx context.Context, ctrl *controllers.OraculoController, message string) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	ch, errCh := ctrl.ExchangeStream(ctx, cliOwner, types.ExchangeRequest{
		SessionID: sessionID,
		Message:   message,
		APIKey:    apiKey,
	})
	for fragment := range ch {
		fmt.Print(color.ColorAssistant(fragment))
	}
	fmt.Println()
	if err := <-errCh; err != nil {
		fmt.Println(color.ColorError(err.Error()))
	}
}

func printHistory(ctx context.Context, ctrl *controllers.OraculoController, arg string) {
	limit := 10
	if n, err := strconv.Atoi(arg); err == nil {
		limit = n
	}
	page, err := ctrl.GetHistoryPage(ctx, cliOwner, sessionID, 0, limit)
	if err != nil {
		fmt.Println(color.ColorError(err.Error()))
		return
	}
	for _, m := range page.Messages {
		fmt.Printf("%s %s\n", color.ColorRole("["+m.Role+"]"), m.Content)
	}
	if page.HasMore {
		fmt.Println(color.ColorInfo(fmt.Sprintf("... %d earlier messages", page.Total-len(page.Messages))))
	}
}

func main() {
	logging.InitLogger()
	defer logging.Sync()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logging.ErrorLogger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}
