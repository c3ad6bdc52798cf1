package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"cubefolio/internal/portfolio"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var projectCategory string

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List portfolio projects, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := fetchProjects(cmd, serverURL, projectCategory)
		if err != nil {
			return err
		}
		printProjects(cmd.OutOrStdout(), projects, time.Now())
		return nil
	},
}

func init() {
	projectsCmd.Flags().StringVar(&projectCategory, "category", "", "only list projects in this category")
}

func fetchProjects(cmd *cobra.Command, base, category string) ([]portfolio.Project, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/") + "/api/projects")
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if category != "" {
		q := u.Query()
		q.Set("category", category)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
		if body.Error == "" {
			body.Error = resp.Status
		}
		return nil, fmt.Errorf("list projects: %s", body.Error)
	}

	var projects []portfolio.Project
	if err := json.NewDecoder(resp.Body).Decode(&projects); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	return projects, nil
}

func printProjects(out io.Writer, projects []portfolio.Project, now time.Time) {
	if len(projects) == 0 {
		fmt.Fprintln(out, "no projects")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tMEDIA\tCREATED")
	for _, p := range projects {
		created := p.CreatedAt
		if t, err := time.Parse(time.RFC3339Nano, p.CreatedAt); err == nil {
			created = humanize.RelTime(t, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", p.ID, p.Title, p.Category, len(p.Media), created)
	}
	tw.Flush()
}
