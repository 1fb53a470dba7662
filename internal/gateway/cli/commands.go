package cli

// Package cli provides one-shot research commands and an interactive
// chat loop. Every command spawns the tool server, runs its operation,
// and tears the subprocess down again on exit.
import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openflux/openflux/internal/answer"
	"github.com/openflux/openflux/internal/chat"
	"github.com/openflux/openflux/internal/config"
	"github.com/openflux/openflux/internal/metrics"
	"github.com/openflux/openflux/internal/research"
	"github.com/openflux/openflux/internal/supervisor"
	"github.com/openflux/openflux/internal/version"
	"github.com/openflux/openflux/pkg/types"
)

var (
	// Global flags
	cfgFile string

	// Search flags
	searchLimit int

	// Code search flags
	fileType string

	// Output format flags
	outputFormat string
)

// RootCmd represents the base command
var RootCmd = &cobra.Command{
	Use:   "openflux",
	Short: "OpenFlux - GitHub repository research client",
	Long: `OpenFlux talks to an external repository research tool server over
stdio: index a GitHub repository, search it semantically, fetch files,
and chat about the code with an LLM.`,
	Version: version.Version,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("OpenFlux v%s\n", version.Version)
		fmt.Printf("Build: %s\n", version.BuildTime)
		fmt.Printf("Commit: %s\n", version.GitCommit)
	},
}

// session bundles the pieces a one-shot command needs.
type session struct {
	cfg *types.Config
	sup *supervisor.Supervisor
	svc *research.Service
}

// openSession loads config, spawns the tool server, and connects.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	config.Validate(cfg)

	sup := supervisor.New(cfg.ToolServer, metrics.NewCollector(false))
	if err := sup.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to tool server: %w", err)
	}

	return &session{
		cfg: cfg,
		sup: sup,
		svc: research.NewService(sup),
	}, nil
}

func (s *session) close() {
	s.svc.Close()
	s.sup.Disconnect()
}

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index [repository-url]",
	Short: "Index a GitHub repository for research",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		result, err := s.svc.IndexRepository(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Indexed %s\n", args[0])
		return printJSON(result)
	},
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search [repository-url] [query]",
	Short: "Semantically search an indexed repository",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		query := strings.Join(args[1:], " ")
		result, err := s.svc.Search(ctx, args[0], query, searchLimit)
		if err != nil {
			return err
		}

		if len(result.Matches) == 0 {
			fmt.Println("No matches.")
			if result.Raw != "" && outputFormat == "json" {
				fmt.Println(result.Raw)
			}
			return nil
		}

		if outputFormat == "json" {
			return printJSON(result)
		}
		for _, m := range result.Matches {
			fmt.Printf("%s (score %.2f)\n%s\n\n", m.FilePath, m.Score, m.Snippet)
		}
		return nil
	},
}

// fileCmd represents the file command
var fileCmd = &cobra.Command{
	Use:   "file [repository-url] [path]",
	Short: "Fetch a file from an indexed repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		content, err := s.svc.FetchFile(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			return printJSON(content)
		}
		fmt.Println(content.Content)
		return nil
	},
}

// structureCmd represents the structure command
var structureCmd = &cobra.Command{
	Use:   "structure [repository-url]",
	Short: "List the file structure of an indexed repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		listing, err := s.svc.ListStructure(ctx, args[0])
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			return printJSON(listing)
		}
		for _, entry := range listing.Entries {
			fmt.Println(entry)
		}
		return nil
	},
}

// grepCmd represents the grep command
var grepCmd = &cobra.Command{
	Use:   "grep [repository-url] [pattern]",
	Short: "Search an indexed repository for a code pattern",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		result, err := s.svc.SearchCode(ctx, args[0], args[1], fileType)
		if err != nil {
			return err
		}

		if len(result.Matches) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		if outputFormat == "json" {
			return printJSON(result)
		}
		for _, m := range result.Matches {
			fmt.Printf("%s\n%s\n\n", m.FilePath, m.Snippet)
		}
		return nil
	},
}

// toolsCmd represents the tools command
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the connected server offers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		catalog := s.sup.Catalog()
		if len(catalog) == 0 {
			fmt.Println("The server offers no tools.")
			return nil
		}

		if outputFormat == "json" {
			return printJSON(catalog)
		}
		for name, tool := range catalog {
			fmt.Printf("%-40s %s\n", name, tool.Description)
		}
		return nil
	},
}

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [repository-url]",
	Short: "Chat about an indexed repository",
	Long: `Interactive chat. Messages that look like code questions pull search
context from the repository before answering; everything else goes
straight to the configured answer provider.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		repository := ""
		if len(args) > 0 {
			repository = args[0]
		}

		generator := answer.FromConfig(s.cfg.LLM)
		if generator == nil {
			fmt.Println("Note: no answer provider configured; replies are raw search excerpts.")
		}

		orchestrator := chat.New(s.svc, generator, nil)
		chatSession := orchestrator.OpenSession(repository)
		defer orchestrator.CloseSession(chatSession.ID)

		fmt.Println("Type a message, or /quit to exit.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" || line == "/exit" {
				return nil
			}

			reply, err := orchestrator.Respond(ctx, chatSession.ID, line)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println(reply)
		}
	},
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		config.Validate(cfg)
		return printJSON(cfg)
	},
}

// init initializes CLI commands
func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	RootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "output format (text, json)")

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of matches")
	grepCmd.Flags().StringVar(&fileType, "type", "", "restrict matches to a file type (e.g. go, py)")

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(indexCmd)
	RootCmd.AddCommand(searchCmd)
	RootCmd.AddCommand(fileCmd)
	RootCmd.AddCommand(structureCmd)
	RootCmd.AddCommand(grepCmd)
	RootCmd.AddCommand(toolsCmd)
	RootCmd.AddCommand(chatCmd)
	RootCmd.AddCommand(configShowCmd)
}

// Execute executes the root command
func Execute() error {
	return RootCmd.Execute()
}

// Helper function to print JSON output
func printJSON(data interface{}) error {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(bytes))
	return nil
}
