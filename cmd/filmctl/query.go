package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/filmsearch/internal/chat"
	"github.com/bull/filmsearch/internal/mcp"
	"github.com/bull/filmsearch/internal/storage"
)

var (
	searchPage    int
	searchSession string
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search films with a natural-language query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var chatCmd = &cobra.Command{
	Use:   "chat FILM_ID",
	Short: "Ask questions about one film interactively",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity to Qdrant, Postgres and Redis",
	RunE:  runHealth,
}

func init() {
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "1-based result page to print")
	searchCmd.Flags().StringVar(&searchSession, "session", "", "candidate index to reuse")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Engine.Search(ctx, searchSession, strings.Join(args, " "))
	if err != nil {
		return err
	}

	films, page := res.Results, 1
	if searchPage > 1 {
		p, err := a.Engine.Page(ctx, res.CandidateIndex, searchPage)
		if err != nil {
			return err
		}
		films, page = p.Results, p.PageNumber
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"results":        films,
			"page":           page,
			"pageCount":      res.PageCount,
			"total":          res.Total,
			"candidateIndex": res.CandidateIndex,
		})
	}

	fmt.Printf("%d films (page %d of %d, candidate index %s)\n\n", res.Total, page, res.PageCount, res.CandidateIndex)
	for i, f := range films {
		printFilm(i+1, &f)
	}
	return nil
}

func printFilm(n int, f *storage.FilmRecord) {
	fmt.Printf("%2d. %s\n", n, f.Title)
	if d := f.BasicDetails.DirectedBy; d != "" {
		fmt.Printf("    Directed by: %s\n", d)
	}
	if s := f.BasicDetails.Starring; s != "" {
		fmt.Printf("    Starring: %s\n", s)
	}
	fmt.Printf("    ID: %s\n", f.ID)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	film, err := a.Engine.FilmByID(ctx, args[0])
	if err != nil {
		return err
	}

	turns := a.Config.Chat.ContextTurns
	if turns <= 0 {
		turns = chat.DefaultContextTurns
	}

	fmt.Printf("Chatting about %s. Empty line or Ctrl-D to quit.\n", film.Title)
	var conv chat.Conversation
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			break
		}
		q := strings.TrimSpace(in.Text())
		if q == "" {
			break
		}

		answer, err := a.Engine.Chat(ctx, q, film, conv.Context(turns))
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			continue
		}
		fmt.Println(answer)

		_ = conv.Add(chat.SenderUser, q)
		_ = conv.Add(chat.SenderAssistant, answer)
	}
	return in.Err()
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, ok := mcp.CheckHealth(ctx, a.HealthChecks())
	names := make([]string, 0, len(resp.Checks))
	for name := range resp.Checks {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Printf("  %-9s %s\n", name+":", resp.Checks[name])
	}
	if !ok {
		return fmt.Errorf("status %s", resp.Status)
	}
	fmt.Println("Status:", resp.Status)
	return nil
}
