package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/campusreport/internal/llm"
	"github.com/joescharf/campusreport/internal/models"
	"github.com/joescharf/campusreport/internal/output"
)

var (
	classifyRoom   string
	classifyUseLLM bool
)

var issueClassifyCmd = &cobra.Command{
	Use:   "classify <description>",
	Short: "Suggest issue types and importance for a problem description",
	Long: `Suggest issue types and importance for a free-text problem description.

Uses keyword heuristics by default. With --llm, asks the configured Anthropic
model instead and falls back to the heuristics when no API key is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueClassifyRun(strings.Join(args, " "))
	},
}

func init() {
	issueClassifyCmd.Flags().StringVar(&classifyRoom, "room", "", "Room number, passed to the model as context")
	issueClassifyCmd.Flags().BoolVar(&classifyUseLLM, "llm", false, "Classify with the Anthropic API")
	issueCmd.AddCommand(issueClassifyCmd)
}

func issueClassifyRun(description string) error {
	var cl *llm.Classification
	source := "keywords"

	if classifyUseLLM {
		if client := newLLMClient(); client != nil {
			ui.VerboseLog("Asking %s", viper.GetString("anthropic.model"))
			res, err := client.Classify(context.Background(), description, classifyRoom)
			if err != nil {
				ui.Warning("LLM classification failed, using keywords: %v", err)
			} else {
				cl = res
				source = "llm"
			}
		} else {
			ui.Warning("No Anthropic API key configured, using keywords")
		}
	}
	if cl == nil {
		cl = &llm.Classification{
			IssueTypes: classifyIssueTypes(description),
			Importance: classifyImportance(description),
		}
	}

	ui.Info("Suggested classification (%s):", source)
	for _, t := range cl.IssueTypes {
		fmt.Fprintf(ui.Out, "  Type:       %s\n", t)
	}
	if len(cl.IssueTypes) == 0 {
		fmt.Fprintf(ui.Out, "  Type:       %s\n", output.Yellow("(no match, pick one manually)"))
	}
	fmt.Fprintf(ui.Out, "  Importance: %s\n", output.ImportanceColor(cl.Importance))
	if cl.Reason != "" {
		fmt.Fprintf(ui.Out, "  Reason:     %s\n", cl.Reason)
	}
	return nil
}

// categoryKeywords maps each category to lower-case keywords found in
// problem descriptions (English and German).
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{models.CategoryLighting, []string{"light", "lamp", "bulb", "flicker", "dark", "licht", "lampe"}},
	{models.CategorySanitary, []string{"toilet", "restroom", "bathroom", "sink", "tap", "faucet", "leak", "flood", "soap", "wc", "toilette"}},
	{models.CategoryHVAC, []string{"heating", "heater", "radiator", "ventilation", "air condition", "aircon", "too hot", "too cold", "freezing", "stuffy", "temperature", "heizung", "lüftung"}},
	{models.CategoryCleaning, []string{"dirty", "clean", "spill", "stain", "trash", "garbage", "rubbish", "vomit", "messy", "smell", "schmutz"}},
	{models.CategoryNetwork, []string{"wifi", "wi-fi", "wlan", "eduroam", "internet", "network", "ethernet", "lan", "connection"}},
	{models.CategoryIT, []string{"projector", "beamer", "screen", "monitor", "hdmi", "computer", "pc", "printer", "microphone", "speaker", "camera"}},
}

// classifyIssueTypes infers categories from the description using keyword
// heuristics. Results follow the canonical category order; no match yields nil.
func classifyIssueTypes(description string) []string {
	words := tokenize(description)
	lower := " " + strings.Join(words, " ") + " "

	var out []string
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if matchesKeyword(lower, words, kw) {
				out = append(out, ck.category)
				break
			}
		}
	}
	return out
}

// classifyImportance infers importance from the description. Explicit
// "not urgent" phrasing wins, then high keywords are checked before low
// keywords. Defaults to "medium".
func classifyImportance(description string) string {
	words := tokenize(description)
	lower := " " + strings.Join(words, " ") + " "

	for _, kw := range []string{"not urgent", "no rush", "not important"} {
		if matchesKeyword(lower, words, kw) {
			return string(models.ImportanceLow)
		}
	}

	highKeywords := []string{
		"urgent", "emergency", "danger", "dangerous", "fire", "smoke", "flood",
		"electric shock", "spark", "injury", "exam", "lecture",
		"no heating", "whole building", "entire floor", "asap",
	}
	for _, kw := range highKeywords {
		if matchesKeyword(lower, words, kw) {
			return string(models.ImportanceHigh)
		}
	}

	lowKeywords := []string{
		"minor", "cosmetic", "small", "slightly", "when you have time",
		"nice to have", "trivial",
	}
	for _, kw := range lowKeywords {
		if matchesKeyword(lower, words, kw) {
			return string(models.ImportanceLow)
		}
	}

	return string(models.ImportanceMedium)
}

// tokenize lower-cases s and splits it into words, keeping letters, digits
// and hyphens.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r == '-' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
}

// inflections are the word endings accepted after a single-word keyword.
var inflections = []string{"", "s", "es", "ed", "ing", "er", "ers", "y"}

// matchesKeyword matches single-word keywords with common English endings
// ("light" matches "lights" but "fire" does not match "firewall") and
// multi-word keywords as phrase prefixes.
func matchesKeyword(padded string, words []string, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(padded, " "+kw)
	}
	for _, w := range words {
		rest, ok := strings.CutPrefix(w, kw)
		if !ok {
			continue
		}
		for _, suffix := range inflections {
			if rest == suffix {
				return true
			}
		}
	}
	return false
}
