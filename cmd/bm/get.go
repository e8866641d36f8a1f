package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bibmeta/internal/reference"
	"github.com/matsen/bibmeta/internal/resolver"
	"github.com/matsen/bibmeta/internal/storage"
)

func init() {
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <br|ra> <id>",
	Short: "Get a persisted entity by canonical id",
	Long: `Get a persisted bibliographic resource (br) or responsible agent (ra)
by its canonical id, with its identifiers. Resources also show their
venue, volume, issue, pages and contributors.

Example:
  bm get br 0601
  bm get ra 0603`,
	Args: cobra.ExactArgs(2),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0])
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	repoRoot := mustFindRepository()
	store := mustOpenStore(repoRoot)
	defer store.Close()

	rec, err := store.Get(cmd.Context(), kind, args[1])
	if err != nil {
		exitWithError(ExitError, "getting entity: %v", err)
	}
	if rec == nil {
		exitWithError(ExitError, "entity not found: %s/%s", kind, args[1])
	}

	if humanOutput {
		printRecordDetail(rec)
	} else {
		outputJSON(rec)
	}
	return nil
}

func parseKind(s string) (reference.Kind, error) {
	switch k := reference.Kind(strings.ToLower(s)); k {
	case reference.KindBR, reference.KindRA:
		return k, nil
	}
	return "", fmt.Errorf("unknown entity kind %q (want br or ra)", s)
}

func printRecordDetail(rec *storage.Record) {
	fmt.Printf("%s/%s", rec.Kind, rec.ID)
	if rec.Conflict {
		fmt.Print("  [CONFLICT]")
	}
	fmt.Println()
	fmt.Println(strings.Repeat("═", DetailTitleMaxLen))
	fmt.Println()

	fmt.Printf("Title:    %s\n", rec.Title)
	if ids := formatIdentifiers(rec.IDs); ids != "" {
		fmt.Printf("IDs:      %s\n", ids)
	}
	if rec.RunID != "" {
		fmt.Printf("Run:      %s\n", rec.RunID)
	}

	if r := rec.Resource; r != nil {
		fmt.Println()
		printField("Type", r.Type)
		printField("Date", r.PubDate)
		printField("Venue", r.Venue)
		printField("Volume", r.Volume)
		printField("Issue", r.Issue)
		if r.Page != nil {
			printField("Pages", r.Page.Range)
		}
	}

	for _, role := range reference.Roles {
		chain := rec.Contributors[role]
		if len(chain) == 0 {
			continue
		}
		rows := make([][]string, len(chain))
		for i, c := range chain {
			rows[i] = []string{fmt.Sprint(i + 1), c.AgentID, c.AgentTitle, formatIdentifiers(c.IDs)}
		}
		fmt.Println()
		fmt.Println(renderTable([]string{"#", strings.ToUpper(string(role[:1])) + string(role[1:]), "Name", "IDs"},
			rows, []columnAlignment{alignRight}))
	}
}

func printField(label, value string) {
	if value != "" {
		fmt.Printf("%-9s %s\n", label+":", value)
	}
}

func formatIdentifiers(ids []resolver.Identifier) string {
	out := make([]string, 0, len(ids))
	for _, x := range ids {
		out = append(out, x.ID.String())
	}
	return strings.Join(out, " ")
}
