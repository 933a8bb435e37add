package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"musiclib/model"
	"musiclib/repository"

	"github.com/spf13/cobra"
)

var (
	tracksUser   string
	tracksLimit  int
	tracksOffset int

	searchName        string
	searchFuzzy       bool
	searchRecursive   bool
	searchRules       []string
	searchConjunction string
	searchRandom      bool
	searchSort        string
)

var tracksCmd = &cobra.Command{
	Use:   "tracks",
	Short: "Query a user's tracks",
}

// runTracksQuery opens the library, runs query and prints its result as JSON.
func runTracksQuery(cmd *cobra.Command, query func(ctx context.Context, repo repository.TrackRepository) (interface{}, error)) error {
	lib, err := openLibrary()
	if err != nil {
		return err
	}
	defer lib.Close()

	result, err := query(cmd.Context(), lib.tracks)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func page() repository.Page {
	return repository.Page{Limit: tracksLimit, Offset: tracksOffset}
}

// parseRule reads "rule:operator:input". The input may itself contain colons.
func parseRule(s string) (model.AdvancedRule, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return model.AdvancedRule{}, fmt.Errorf("rule %q is not rule:operator[:input]", s)
	}
	rule := model.AdvancedRule{Rule: parts[0], Operator: parts[1]}
	if len(parts) == 3 {
		rule.Input = parts[2]
	}
	return rule, nil
}

var tracksSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search by name, or by advanced rules given with --rule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTracksQuery(cmd, func(ctx context.Context, repo repository.TrackRepository) (interface{}, error) {
			if len(searchRules) > 0 {
				rules := make([]model.AdvancedRule, 0, len(searchRules))
				for _, s := range searchRules {
					rule, err := parseRule(s)
					if err != nil {
						return nil, err
					}
					rules = append(rules, rule)
				}
				return repo.FindAllAdvanced(ctx, searchConjunction, rules, searchRandom,
					repository.ParseSortBy(searchSort), false, tracksUser, page())
			}
			if searchRecursive {
				return repo.FindAllByNameRecursive(ctx, searchName, tracksUser, page())
			}
			return repo.FindAllByName(ctx, searchName, tracksUser, searchFuzzy, page())
		})
	},
}

var tracksFrequentCmd = &cobra.Command{
	Use:   "frequent",
	Short: "List the most played tracks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTracksQuery(cmd, func(ctx context.Context, repo repository.TrackRepository) (interface{}, error) {
			return repo.FindFrequentPlay(ctx, tracksUser, page())
		})
	},
}

var tracksRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recently played tracks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTracksQuery(cmd, func(ctx context.Context, repo repository.TrackRepository) (interface{}, error) {
			return repo.FindRecentPlay(ctx, tracksUser, page())
		})
	},
}

var tracksFoldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "Group track ids by folder in natural file name order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTracksQuery(cmd, func(ctx context.Context, repo repository.TrackRepository) (interface{}, error) {
			return repo.FindTrackAndFolderIDs(ctx, tracksUser)
		})
	},
}

var tracksRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the advanced search rule names",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(cmd.OutOrStdout(), repository.TrackRules().Names())
	},
}

func init() {
	rootCmd.AddCommand(tracksCmd)
	tracksCmd.AddCommand(tracksSearchCmd, tracksFrequentCmd, tracksRecentCmd, tracksFoldersCmd, tracksRulesCmd)

	tracksCmd.PersistentFlags().StringVarP(&tracksUser, "user", "u", "", "user id whose library is queried")
	tracksCmd.PersistentFlags().IntVar(&tracksLimit, "limit", 50, "maximum number of tracks, 0 for all")
	tracksCmd.PersistentFlags().IntVar(&tracksOffset, "offset", 0, "number of tracks to skip")

	tracksSearchCmd.Flags().StringVarP(&searchName, "name", "n", "", "title to search for")
	tracksSearchCmd.Flags().BoolVar(&searchFuzzy, "fuzzy", true, "match the name as a substring")
	tracksSearchCmd.Flags().BoolVarP(&searchRecursive, "recursive", "r", false, "also match artist and album names")
	tracksSearchCmd.Flags().StringArrayVar(&searchRules, "rule", nil, "advanced rule as rule:operator:input, repeatable")
	tracksSearchCmd.Flags().StringVar(&searchConjunction, "conjunction", "and", "combine rules with and/or")
	tracksSearchCmd.Flags().BoolVar(&searchRandom, "random", false, "shuffle advanced search results")
	tracksSearchCmd.Flags().StringVar(&searchSort, "sort", "name", "sort key: name, parent, newest, play_count, last_played")

	for _, c := range []*cobra.Command{tracksSearchCmd, tracksFrequentCmd, tracksRecentCmd, tracksFoldersCmd} {
		c.PreRunE = requireUser
	}

	tracksSearchCmd.Example = `  musiclib tracks search -u alice -n "love"
  musiclib tracks search -u alice --rule anywhere:contain:beatles --rule year:">=":1965`
}

// requireUser guards the tracks subcommands that read a library.
func requireUser(cmd *cobra.Command, args []string) error {
	if tracksUser == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}
