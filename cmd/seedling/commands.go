package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"seedling/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant a question",
	Long: `Ask the assistant a question.

A confident answer comes verbatim from the knowledge base. An unknown topic
is registered for background learning; ask again once a learning cycle has
run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/chat", map[string]string{"prompt": prompt})
		if err != nil {
			return err
		}

		var result struct {
			Text       string   `json:"text"`
			Confident  bool     `json:"confident"`
			MatchKey   string   `json:"match_key"`
			Distance   float64  `json:"distance"`
			Registered []string `json:"registered"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Text)
		if result.Confident {
			printStatus("Matched", "%s (distance %.3f)", result.MatchKey, result.Distance)
		} else if len(result.Registered) > 0 {
			printStep("Registered for learning: %s", strings.Join(result.Registered, ", "))
		}
		return nil
	},
}

// --- learn ---

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Queue a learning job",
	Long: `Queue a learning job.

Modes:
  quick  learn a small batch of pending concepts (default)
  deep   learn all pending concepts and deepen known ones
  batch  self-directed learning under a wall-clock budget`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		watch, _ := cmd.Flags().GetBool("watch")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/jobs", map[string]string{"mode": mode})
		if err != nil {
			return err
		}

		var created struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}
		printSuccess("Queued %s learning job %s", mode, created.ID)

		if watch {
			return watchJob(cmd, client, created.ID)
		}
		return nil
	},
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect background jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/jobs")
		if err != nil {
			return err
		}

		var jobs []struct {
			ID       string `json:"id"`
			Mode     string `json:"mode"`
			Status   string `json:"status"`
			Progress int    `json:"progress"`
		}
		if err := decodeJSON(resp, &jobs); err != nil {
			return err
		}
		if len(jobs) == 0 {
			printStep("No jobs yet")
			return nil
		}
		for _, j := range jobs {
			fmt.Printf("  %s  %-9s %-9s %3d%%\n", j.ID, j.Mode, j.Status, j.Progress)
		}
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/jobs/"+args[0])
		if err != nil {
			return err
		}

		var job map[string]any
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		pretty, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(pretty))
		return nil
	},
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Stream a job's progress until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return watchJob(cmd, client, args[0])
	},
}

func watchJob(cmd *cobra.Command, client *apiClient, id string) error {
	resp, err := client.get(cmd.Context(), "/jobs/"+id+"/events")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Status   string `json:"status"`
			Progress int    `json:"progress"`
			Errors   []any  `json:"errors"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		printStep("%s %3d%% (%d errors)", ev.Status, ev.Progress, len(ev.Errors))
		if ev.Status == "completed" {
			printSuccess("Job %s completed", id)
			return nil
		}
		if ev.Status == "failed" {
			printError("Job %s failed", id)
			return fmt.Errorf("job failed")
		}
	}
	return scanner.Err()
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show seedling system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		client := &http.Client{Timeout: 2 * time.Second}

		resp, err := client.Get(serverURL + "/health")
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			var health struct {
				Status    string `json:"status"`
				Knowledge struct {
					Pending int `json:"pending"`
					Known   int `json:"known"`
					Vectors int `json:"vectors"`
				} `json:"knowledge"`
			}
			err := json.NewDecoder(resp.Body).Decode(&health)
			resp.Body.Close()
			if err != nil || health.Status != "ok" {
				printStatus("Server", "error")
			} else {
				printStatus("Server", "running on port %d", cfg.Server.Port)
				printStatus("Known", "%d concepts", health.Knowledge.Known)
				printStatus("Pending", "%d concepts", health.Knowledge.Pending)
				printStatus("Vectors", "%d entries", health.Knowledge.Vectors)
			}
		}

		localResp, err := client.Get(cfg.Local.BaseURL + "/api/tags")
		if err != nil {
			printStatus("Local model", "not running")
		} else {
			localResp.Body.Close()
			printStatus("Local model", "%s at %s", cfg.Local.ChatModel, cfg.Local.BaseURL)
		}
		if cfg.Gemini.APIKey != "" {
			printStatus("Quality provider", "gemini (%s)", cfg.Gemini.Model)
		}
		if cfg.Groq.APIKey != "" {
			printStatus("Fast provider", "groq (%s)", cfg.Groq.Model)
		}
		if cfg.Graph.URI != "" {
			printStatus("Graph", "%s", cfg.Graph.URI)
		}
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
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
	learnCmd.Flags().String("mode", "quick", "learning mode: quick, deep, or batch")
	learnCmd.Flags().Bool("watch", false, "stream job progress until it finishes")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsWatchCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
