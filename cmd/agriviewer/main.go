package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	config "agriviewer-chat-api/configs"
	"agriviewer-chat-api/pkg/models"
	"agriviewer-chat-api/pkg/server"
	"agriviewer-chat-api/pkg/services"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	var metrics []string

	rootCmd := &cobra.Command{
		Use:   "agriviewer",
		Short: "Chat with your field data from the terminal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringSliceVarP(&metrics, "metrics", "m", nil, "metrics to analyze (e.g. NDVI,soil_moisture)")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive analysis session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), app, metrics)
		},
	}

	askCmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Run a single analysis turn and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			session := app.Sessions.Create()
			reply := app.Orchestrator.HandleTurn(cmd.Context(), session, strings.Join(args, " "), metrics)
			printReply(cmd.OutOrStdout(), reply)
			if reply.Kind == models.ReplyError {
				return fmt.Errorf("analysis failed")
			}
			return nil
		},
	}

	rootCmd.AddCommand(chatCmd, askCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func newApp(ctx context.Context) (*server.App, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}
	return server.NewApp(ctx, config.LoadConfig(), config.GetDataSourceConfig())
}

// runChat は終了コマンドかEOFまで1行ずつターンを処理します。
func runChat(ctx context.Context, in io.Reader, out io.Writer, app *server.App, metrics []string) error {
	session := app.Sessions.Create()
	defer app.Sessions.Delete(session.ID)

	fmt.Fprintln(out, app.Prompts.Welcome)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if app.Prompts.IsExitCommand(line) {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		printReply(out, app.Orchestrator.HandleTurn(ctx, session, line, metrics))

		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func printReply(out io.Writer, reply models.TurnReply) {
	fmt.Fprintf(out, "\nAgriViewer: %s\n", reply.Reply)
	if reply.Table != nil && reply.Table.Len() > 0 {
		fmt.Fprintln(out)
		services.WriteTable(out, *reply.Table)
	}
	if reply.Insight != nil && len(reply.Insight.FollowUpQuestions) > 0 {
		fmt.Fprintln(out, "\nYou might also ask:")
		for i, q := range reply.Insight.FollowUpQuestions {
			fmt.Fprintf(out, "  %d. %s\n", i+1, q)
		}
	}
}
