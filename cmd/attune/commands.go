package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/attune/internal/config"
	"github.com/kalambet/attune/internal/connection"
	"github.com/kalambet/attune/internal/kernel"
	"github.com/kalambet/attune/internal/llm"
	"github.com/kalambet/attune/internal/onboarding"
	"github.com/kalambet/attune/internal/overrides"
	"github.com/kalambet/attune/internal/pacing"
	"github.com/kalambet/attune/internal/profile"
	"github.com/kalambet/attune/internal/storage"
)

// audioFlags registers speech metric flags shared by chat and pacing.
func audioFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("wpm", 0, "speech rate in words per minute")
	cmd.Flags().Float64("pauses", 0, "pauses per minute")
	cmd.Flags().Float64("volume", 0, "average volume from 0 to 1")
}

func readAudioFlags(cmd *cobra.Command) *pacing.AudioMetrics {
	var a pacing.AudioMetrics
	a.WordsPerMinute, _ = cmd.Flags().GetFloat64("wpm")
	a.PausesPerMinute, _ = cmd.Flags().GetFloat64("pauses")
	a.AverageVolume, _ = cmd.Flags().GetFloat64("volume")
	if a == (pacing.AudioMetrics{}) {
		return nil
	}
	return &a
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one message through the companion",
	Long: `Send one message through the companion and print the reply.

While onboarding is active the reply is the next interview question.

Examples:
  attune chat "I had a rough day"
  attune chat --wpm 190 "I can't slow down"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"messages": []llm.Message{{Role: "user", Content: strings.Join(args, " ")}},
		}
		if audio := readAudioFlags(cmd); audio != nil {
			req["audio_metrics"] = audio
		}

		resp, err := client.post(cmd.Context(), "/v1/chat/completions", req)
		if err != nil {
			return err
		}
		fallback := resp.Header.Get("X-Attune-Fallback")

		var out llm.ChatResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Content())
		if fallback != "" {
			printWarning("fallback reply (%s)", fallback)
		}
		return nil
	},
}

func init() {
	audioFlags(chatCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or reset the cognitive profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}
		var p profile.Profile
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

var profileContextCmd = &cobra.Command{
	Use:   "context",
	Short: "Show the profile summary and coach adaptation lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/profile/context")
		if err != nil {
			return err
		}
		var out struct {
			Context    string   `json:"context"`
			Adaptation []string `json:"adaptation"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, out.Context)
		if len(out.Adaptation) > 0 {
			fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Adaptation:"))
			for _, line := range out.Adaptation {
				fmt.Fprintf(w, "  - %s\n", line)
			}
		}
		return nil
	},
}

var profileResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the profile, onboarding answers and connection history",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This forgets everything learned about you. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/profile")
		if err != nil {
			return err
		}
		var out map[string]any
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Profile reset")
		return nil
	},
}

func init() {
	profileResetCmd.Flags().Bool("confirm", false, "confirm the reset")
	profileCmd.AddCommand(profileShowCmd, profileContextCmd, profileResetCmd)
}

// --- onboarding ---

var onboardingCmd = &cobra.Command{
	Use:   "onboarding",
	Short: "Walk through the onboarding interview",
}

var onboardingNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next onboarding question",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/onboarding/next")
		if err != nil {
			return err
		}
		var out struct {
			Done     bool                 `json:"done"`
			Question *onboarding.Question `json:"question"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if out.Done || out.Question == nil {
			printSuccess("Onboarding is complete")
			return nil
		}
		printQuestion(cmd.OutOrStdout(), *out.Question)
		return nil
	},
}

var onboardingAnswerCmd = &cobra.Command{
	Use:   "answer <question-id> <reply>",
	Short: "Answer an onboarding question",
	Long: `Answer an onboarding question by option number, value, label or free text.

Examples:
  attune onboarding answer welcome_comfort 2
  attune onboarding answer support_network "friends, family"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		req := map[string]string{
			"question_id": args[0],
			"reply":       strings.Join(args[1:], " "),
		}
		resp, err := client.post(cmd.Context(), "/onboarding/answers", req)
		if err != nil {
			return err
		}
		var res onboarding.Result
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}

		if res.Ignored {
			printWarning("%s was already answered; nothing changed", args[0])
		} else {
			printSuccess("Recorded %s (confidence %d%%)", args[0], res.Profile.Confidence)
		}
		if res.Next == nil {
			printSuccess("Onboarding is complete")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout())
		printQuestion(cmd.OutOrStdout(), *res.Next)
		return nil
	},
}

var onboardingProgressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show onboarding progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/onboarding/progress")
		if err != nil {
			return err
		}
		var st onboarding.Status
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}

		printStatus("Answered", "%d", st.Answered)
		printStatus("Remaining", "%d", st.Remaining)
		printStatus("Depth", "%s", st.Progress.Depth)
		printStatus("Self-awareness", "%s", st.Progress.SelfAwareness)
		printStatus("Complete", "%t", st.Complete)
		return nil
	},
}

var onboardingCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Finish onboarding now, keeping the answers so far",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/onboarding/complete", struct{}{})
		if err != nil {
			return err
		}
		var out struct {
			Profile profile.Profile `json:"profile"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Onboarding complete (confidence %d%%)", out.Profile.Confidence)
		return nil
	},
}

func init() {
	onboardingCmd.AddCommand(onboardingNextCmd, onboardingAnswerCmd, onboardingProgressCmd, onboardingCompleteCmd)
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <response>",
	Short: "Check a candidate companion reply against the policy",
	Long: `Check a candidate companion reply against the hard rules, guidelines and tenets.

Examples:
  attune validate "You should just relax."
  attune validate --message "I can't sleep" "That sounds exhausting."`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/validate", map[string]string{
			"response":     strings.Join(args, " "),
			"user_message": message,
		})
		if err != nil {
			return err
		}
		var v kernel.CoachValidation
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}
		printValidation(cmd.OutOrStdout(), v)
		return nil
	},
}

func init() {
	validateCmd.Flags().String("message", "", "the user message the reply answers")
}

// --- pacing ---

var pacingCmd = &cobra.Command{
	Use:   "pacing <text>",
	Short: "Classify the state behind a message and show the pacing directive",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		in := pacing.Input{Text: strings.Join(args, " "), Audio: readAudioFlags(cmd)}
		resp, err := client.post(cmd.Context(), "/pacing", in)
		if err != nil {
			return err
		}
		var out struct {
			State pacing.State `json:"state"`
			Hint  string       `json:"hint"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printStatus("State", "%s", out.State)
		fmt.Fprintln(cmd.OutOrStdout(), out.Hint)
		return nil
	},
}

func init() {
	audioFlags(pacingCmd)
}

// --- principles ---

var principlesCmd = &cobra.Command{
	Use:   "principles",
	Short: "Show beliefs, rules and tenets",
	RunE: func(cmd *cobra.Command, args []string) error {
		rulesOnly, _ := cmd.Flags().GetBool("rules")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/principles")
		if err != nil {
			return err
		}
		var out struct {
			Version int                 `json:"version"`
			Rules   []kernel.RuleStatus `json:"rules"`
			Context string              `json:"context"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if !rulesOnly {
			fmt.Fprintln(w, out.Context)
			return nil
		}
		fmt.Fprintf(w, "policy version %d\n", out.Version)
		for _, r := range out.Rules {
			state := colorize(colorGreen, "on ")
			if !r.Enabled {
				state = colorize(colorRed, "off")
			}
			fmt.Fprintf(w, "  %s %-28s %-8s %s\n", state, r.ID, r.Tier, r.Description)
		}
		return nil
	},
}

func init() {
	principlesCmd.Flags().Bool("rules", false, "list rules with their enabled state")
}

// --- connection ---

var connectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Show connection health or record external support",
}

var connectionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the connection-health record",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/connection-health")
		if err != nil {
			return err
		}
		var h connection.Health
		if err := decodeJSON(resp, &h); err != nil {
			return err
		}
		printHealth(h)
		return nil
	},
}

var connectionSupportCmd = &cobra.Command{
	Use:   "support <true|false>",
	Short: "Record whether you have support outside the companion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		has, err := strconv.ParseBool(args[0])
		if err != nil {
			return fmt.Errorf("expected true or false, got %q", args[0])
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/connection-health/support", map[string]bool{"has_external_support": has})
		if err != nil {
			return err
		}
		var h connection.Health
		if err := decodeJSON(resp, &h); err != nil {
			return err
		}
		printHealth(h)
		return nil
	},
}

func init() {
	connectionCmd.AddCommand(connectionShowCmd, connectionSupportCmd)
}

// --- nudges ---

var nudgesCmd = &cobra.Command{
	Use:   "nudges",
	Short: "List recently delivered connection nudges",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/nudges?limit=%d", limit))
		if err != nil {
			return err
		}
		var nudges []storage.Nudge
		if err := decodeJSON(resp, &nudges); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(nudges) == 0 {
			fmt.Fprintln(w, "No nudges delivered.")
			return nil
		}
		for _, n := range nudges {
			text := n.Text
			if len(text) > 80 {
				text = text[:80] + "..."
			}
			fmt.Fprintf(w, "%s  %s\n", colorize(colorCyan, n.CreatedAt.Local().Format("2006-01-02 15:04")), text)
		}
		return nil
	},
}

func init() {
	nudgesCmd.Flags().Int("limit", 10, "maximum number of nudges to list")
}

// --- overrides ---

var overridesCmd = &cobra.Command{
	Use:   "overrides",
	Short: "Inspect, sync or edit belief and rule overrides",
}

var overridesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the override document in effect",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/overrides")
		if err != nil {
			return err
		}
		var doc overrides.Document
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), doc)
	},
}

var overridesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch overrides from the configured endpoint now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Syncing overrides...")
		resp, err := client.post(cmd.Context(), "/overrides/sync", struct{}{})
		if err != nil {
			return err
		}
		var doc overrides.Document
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}
		printSuccess("Overrides at version %d", doc.Version)
		return nil
	},
}

func overridesEditCmd(use, short, path, verb string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <rule-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.post(cmd.Context(), path, map[string][]string{"ids": args})
			if err != nil {
				return err
			}
			var out struct {
				Document overrides.Document `json:"document"`
				Ignored  []string           `json:"ignored"`
			}
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
			if len(out.Ignored) > 0 {
				printWarning("Unknown rules ignored: %s", strings.Join(out.Ignored, ", "))
			}
			printSuccess("%s (version %d)", verb, out.Document.Version)
			return nil
		},
	}
}

var overridesSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the override document",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := overrides.Schema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return err
	},
}

func init() {
	overridesCmd.AddCommand(
		overridesShowCmd,
		overridesSyncCmd,
		overridesEditCmd("disable", "Disable rules locally", "/overrides/disable", "Rules disabled"),
		overridesEditCmd("enable", "Re-enable rules locally", "/overrides/enable", "Rules enabled"),
		overridesSchemaCmd,
	)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
