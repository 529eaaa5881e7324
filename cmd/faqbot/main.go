package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/faqbot/faqbot/internal/api"
	"github.com/faqbot/faqbot/internal/chat"
	"github.com/faqbot/faqbot/internal/config"
	"github.com/faqbot/faqbot/internal/log"
	"github.com/faqbot/faqbot/internal/querylog"
	"github.com/faqbot/faqbot/internal/resolver"
	"github.com/faqbot/faqbot/internal/store"
)

var dbPath string

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := log.New(log.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})

	rootCmd := &cobra.Command{
		Use:   "faqbot",
		Short: "Question-answering chatbot over a tagged knowledge base",
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", cfg.DBPath, "database path")

	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(searchCmd(cfg, logger))
	rootCmd.AddCommand(chatCmd(cfg))
	rootCmd.AddCommand(topCmd())
	rootCmd.AddCommand(serveCmd(cfg, logger))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getStore() (*store.Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.New(dbPath)
}

func addCmd() *cobra.Command {
	var answer, source string
	var tags []string

	cmd := &cobra.Command{
		Use:   "add [question]",
		Short: "Add a question/answer record",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.Add(cmd.Context(), question, answer, tags, source)
			if err != nil {
				return err
			}

			fmt.Printf("Added record: %s\n", rec.ID[:8])
			fmt.Printf("Q: %s\n", truncate(rec.Question, 80))
			fmt.Printf("A: %s\n", truncate(rec.Answer, 80))
			if len(rec.Tags) > 0 {
				fmt.Printf("Tags: %s\n", strings.Join(rec.Tags, ", "))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&answer, "answer", "a", "", "answer text (required)")
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "tags (comma-separated)")
	cmd.Flags().StringVarP(&source, "source", "s", "", "provenance label (default \"user\")")
	cmd.MarkFlagRequired("answer")
	return cmd
}

func listCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent records",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			records, err := s.List(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Println("No records yet. Use 'faqbot add' to create one.")
				return nil
			}

			for _, r := range records {
				fmt.Printf("%s  %s\n", r.ID[:8], truncate(r.Question, 60))
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")
	return cmd
}

func searchCmd(cfg config.Config, logger log.Logger) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Resolve a query against the local knowledge base",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query string
			if len(args) > 0 {
				query = args[0]
			}

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			recorder := querylog.NewRecorder(s, cfg.LogBuffer, logger)
			defer recorder.Close()

			res := resolver.New(s, recorder, cfg.FallbackAnswer, logger).
				Resolve(cmd.Context(), query, tags)

			fmt.Println(res.Answer)
			fmt.Printf("(matched by: %s", res.MatchedBy)
			if res.Score != nil {
				fmt.Printf(", score: %.2f", *res.Score)
			}
			fmt.Println(")")

			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "tags (comma-separated)")
	return cmd
}

func topCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the most frequent queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			counts, err := s.TopQueries(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if len(counts) == 0 {
				fmt.Println("No queries logged yet.")
				return nil
			}

			for _, qc := range counts {
				fmt.Printf("%5d  %s\n", qc.Count, qc.Query)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of queries to show")
	return cmd
}

func chatCmd(cfg config.Config) *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running faqbot server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := chat.NewClient(serverURL, cfg.ChatTimeout)
			session := chat.NewSession()

			userPrompt := color.New(color.FgGreen, color.Bold).SprintFunc()
			botPrompt := color.New(color.FgCyan, color.Bold).SprintFunc()
			meta := color.New(color.Faint).SprintFunc()

			fmt.Printf("Connected to %s\n", serverURL)
			fmt.Println("Type your question and press Enter. Type 'exit' to quit.")
			fmt.Println()

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print(userPrompt("You: "))
				if !scanner.Scan() {
					break
				}
				input := scanner.Text()

				if strings.ToLower(strings.TrimSpace(input)) == "exit" {
					break
				}

				if err := session.Submit(input); err != nil {
					if errors.Is(err, chat.ErrEmptyInput) {
						continue
					}
					return err
				}

				res, err := client.Ask(cmd.Context(), input, nil)
				if err != nil {
					var terr *chat.TransportError
					if errors.As(err, &terr) {
						session.Deliver(chat.ConnectivityErrorMessage)
						fmt.Printf("%s %s\n\n", botPrompt("Bot:"), chat.ConnectivityErrorMessage)
						continue
					}
					return err
				}

				session.Deliver(res.Answer)
				fmt.Printf("%s %s\n", botPrompt("Bot:"), res.Answer)
				if res.MatchedBy != "none" {
					fmt.Printf("     %s\n", meta(fmt.Sprintf("[%s]", res.MatchedBy)))
				}
				fmt.Println()
			}

			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", cfg.ServerURL, "faqbot server URL")
	return cmd
}

func serveCmd(cfg config.Config, logger log.Logger) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			recorder := querylog.NewRecorder(s, cfg.LogBuffer, logger)
			defer recorder.Close()

			res := resolver.New(s, recorder, cfg.FallbackAnswer, logger)
			server := api.New(s, res, recorder, logger, addr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", cfg.Addr, "server address")
	return cmd
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
