package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const envExamplePath = ".env.example"

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(envExamplePath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", envExamplePath, err)
	}

	fmt.Println("✅ Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# scqueue Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	fmt.Fprintf(&content, "# Format: %s_<SECTION>_<SETTING>=value\n", envPrefix)
	content.WriteString("# CLI equivalent: --<section>-<setting>\n")
	content.WriteString("#\n\n")

	writeSection(&content, cmd, "SoundCloud Account",
		"Copy client_id and the oauth_token cookie from a logged-in soundcloud.com session.\n"+
			"# Leave both empty to use the token file written by `scqueue login`.",
		[]envEntry{
			{flag: "soundcloud-client-id", example: "your_client_id", help: "Client ID sent as client_id"},
			{flag: "soundcloud-oauth-token", example: "2-000000-00000000-xxxxxxxxxxxx", help: "Value of the oauth_token cookie"},
			{flag: "soundcloud-token-path", help: "Token file"},
			{flag: "soundcloud-api-url", help: "API base URL"},
			{flag: "soundcloud-page-size", help: "Items per collection page"},
			{flag: "soundcloud-feed-max-items", help: "Feed items fetched at most"},
			{flag: "soundcloud-requests-per-second", help: "Collection request pacing"},
		})

	writeSection(&content, cmd, "Queue Generation",
		"Likes ratio is clamped to 1-10, feed ratio to 0-10. Feed ratio 0 appends the feed after the likes.",
		[]envEntry{
			{flag: "queue-min-duration", help: "Minimum track length in minutes"},
			{flag: "queue-feed-ratio", help: "Feed tracks per cycle"},
			{flag: "queue-likes-ratio", help: "Liked tracks per cycle"},
			{flag: "queue-seed", help: "Fixed shuffle seed, 0 is random"},
		})

	writeSection(&content, cmd, "Playback",
		"Expired stream URLs are re-resolved up to the given number of times per track.",
		[]envEntry{
			{flag: "playback-max-recovery-attempts", help: "Recoveries per track"},
			{flag: "playback-autoplay", help: "Start playing loaded tracks"},
			{flag: "playback-resolve-timeout-secs", help: "Stream resolve timeout"},
		})

	writeSection(&content, cmd, "Storage and HTTP Server", "",
		[]envEntry{
			{flag: "store-path", help: "SQLite database"},
			{flag: "server-host", example: "127.0.0.1", help: "Server bind address"},
			{flag: "server-port", help: "Server port"},
			{flag: "flood-limit-per-minute", help: "Queue generations per client per minute"},
		})

	writeSection(&content, cmd, "Localization and Logging", "",
		[]envEntry{
			{flag: "language", help: "Message language"},
			{flag: "log-level", help: "Log level: debug, info, warn, error"},
			{flag: "log-format", help: "Log format: json, console"},
		})

	return content.String()
}

type envEntry struct {
	flag    string
	example string
	help    string
}

func writeSection(content *strings.Builder, cmd *cobra.Command, title, note string, entries []envEntry) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# %s\n", title)
	content.WriteString("# -----------------------------------------------------------------------------\n")
	if note != "" {
		fmt.Fprintf(content, "# %s\n", note)
	}

	for _, e := range entries {
		def := getDefaultValueString(cmd, e.flag)
		value := e.example
		if value == "" {
			value = def
		}
		line := fmt.Sprintf("%s=%s", flagToEnvVar(e.flag), value)
		if def != "" {
			fmt.Fprintf(content, "%-48s # %s (default: %s)\n", line, e.help, def)
		} else {
			fmt.Fprintf(content, "%-48s # %s\n", line, e.help)
		}
	}
	content.WriteString("\n")
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func getDefaultValueString(cmd *cobra.Command, flagName string) string {
	if f := cmd.Root().PersistentFlags().Lookup(flagName); f != nil {
		return f.DefValue
	}
	return ""
}
