package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chat2doc/chat2doc/internal/config"
	"github.com/chat2doc/chat2doc/internal/storage"
)

// --- convert ---

var convertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "Convert a chat export into PDF and DOCX",
	Long: `Convert a chat export into PDF and DOCX documents.

Examples:
  chat2doc convert ./conversations.json --user alice
  chat2doc convert ./export.zip --user alice
  chat2doc convert --url https://chat.example.com/share/abc123 --user alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		shareURL, _ := cmd.Flags().GetString("url")

		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		if len(args) == 0 && shareURL == "" {
			return fmt.Errorf("a file argument or --url is required")
		}
		if len(args) > 0 && shareURL != "" {
			return fmt.Errorf("pass either a file argument or --url, not both")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var resp *http.Response
		if shareURL != "" {
			resp, err = client.post(cmd.Context(), "/conversions", map[string]string{
				"user_id": userID,
				"url":     shareURL,
			})
		} else {
			data, readErr := os.ReadFile(args[0])
			if readErr != nil {
				return fmt.Errorf("reading file: %w", readErr)
			}
			resp, err = client.postFile(cmd.Context(), "/conversions", userID, args[0], data)
		}
		if err != nil {
			return err
		}

		var record storage.Conversion
		if err := decodeJSON(resp, &record); err != nil {
			return err
		}

		switch record.Status {
		case storage.StatusCompleted:
			printSuccess("Conversion %s completed", record.ID[:8])
			printStatus("Platform", "%s", record.Platform)
			printStatus("Messages", "%d (%d words, %d skipped)", record.MessageCount, record.WordCount, record.SkippedCount)
			printStatus("PDF", "%s", record.PDFPath)
			printStatus("DOCX", "%s", record.DOCXPath)
		case storage.StatusFailed:
			printError("Conversion %s failed (%s): %s", record.ID[:8], record.ErrorCategory, record.Error)
		default:
			printStatus("Conversion", "%s is %s", record.ID[:8], record.Status)
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().String("user", "", "user ID submitting the conversion")
	convertCmd.Flags().String("url", "", "public share link to fetch and convert")
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversions for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/conversions?user_id="+url.QueryEscape(userID))
		if err != nil {
			return err
		}

		var records []storage.Conversion
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No conversions found.")
			return nil
		}

		for _, r := range records {
			status := string(r.Status)
			switch r.Status {
			case storage.StatusCompleted:
				status = colorize(colorGreen, status)
			case storage.StatusFailed:
				status = colorize(colorRed, status)
			}
			fmt.Printf("%s  %-28s  %-10s  %s\n",
				colorize(colorCyan, r.ID[:8]),
				truncate(r.OriginalFilename, 28),
				r.Platform,
				status,
			)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().String("user", "", "user ID to list conversions for")
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single conversion as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/conversions/"+args[0])
		if err != nil {
			return err
		}

		var record any
		if err := decodeJSON(resp, &record); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	},
}

// --- download ---

var downloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download a finished document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		format = strings.ToLower(format)
		if format != "pdf" && format != "docx" {
			return fmt.Errorf("--format must be pdf or docx")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/conversions/%s/files/%s", args[0], format))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		if output == "" {
			output = fmt.Sprintf("%s.%s", args[0], format)
		}
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()

		n, err := io.Copy(f, resp.Body)
		if err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}

		printSuccess("Saved %s (%d bytes)", filepath.Clean(output), n)
		return nil
	},
}

func init() {
	downloadCmd.Flags().String("format", "pdf", "document format: pdf or docx")
	downloadCmd.Flags().String("output", "", "output file path (default: <id>.<format>)")
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversion and its documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/conversions/"+args[0])
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		printSuccess("Deleted conversion %s", args[0])
		return nil
	},
}

// --- summarize ---

var summarizeCmd = &cobra.Command{
	Use:   "summarize <id>",
	Short: "Summarize a converted conversation with the local model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/conversions/"+args[0]+"/summary", nil)
		if err != nil {
			return err
		}

		var result struct {
			Summary string `json:"summary"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Summary)
		return nil
	},
}

// --- user ---

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Show or update a user profile",
}

var userShowCmd = &cobra.Command{
	Use:   "show <uid>",
	Short: "Show a user profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/users/"+args[0])
		if err != nil {
			return err
		}

		var u storage.User
		if err := decodeJSON(resp, &u); err != nil {
			return err
		}

		printStatus("User", "%s", u.UID)
		printStatus("Subscription", "%s", u.Subscription)
		printStatus("Conversions", "%d", u.ConversionCount)
		printStatus("Default format", "%s", u.DefaultFormat)
		printStatus("Auto-delete", "%t", u.AutoDelete)
		return nil
	},
}

var userPreferencesCmd = &cobra.Command{
	Use:   "preferences <uid>",
	Short: "Update a user's preferences",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{}
		if cmd.Flags().Changed("format") {
			format, _ := cmd.Flags().GetString("format")
			body["default_format"] = format
		}
		if cmd.Flags().Changed("auto-delete") {
			autoDelete, _ := cmd.Flags().GetBool("auto-delete")
			body["auto_delete"] = autoDelete
		}
		if len(body) == 0 {
			return fmt.Errorf("nothing to update; pass --format and/or --auto-delete")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/users/"+args[0]+"/preferences", body)
		if err != nil {
			return err
		}

		var u storage.User
		if err := decodeJSON(resp, &u); err != nil {
			return err
		}

		printSuccess("Updated preferences for %s (format=%s, auto_delete=%t)", u.UID, u.DefaultFormat, u.AutoDelete)
		return nil
	},
}

func init() {
	userPreferencesCmd.Flags().String("format", "", "default output format: pdf or docx")
	userPreferencesCmd.Flags().Bool("auto-delete", false, "delete documents after download")
	userCmd.AddCommand(userShowCmd)
	userCmd.AddCommand(userPreferencesCmd)
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

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
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

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
