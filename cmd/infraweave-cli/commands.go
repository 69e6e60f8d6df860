package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/davidahmann/infraweave-panel/internal/journal"
	"github.com/davidahmann/infraweave-panel/pkg/types"
)

func handleConfig(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, common := newFlagSet("config", stderr)
	reload := fs.Bool("reload", false, "reload the configuration entity first")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(stderr, "config takes no arguments")
		return 2
	}
	g := common.gateway(stderr)

	method, path := http.MethodGet, "/v1/config"
	if *reload {
		method, path = http.MethodPost, "/v1/config/reload"
	}
	body, code, ok := g.call(method, path, nil, stdout, stderr)
	if !ok {
		return code
	}

	var payload struct {
		State             string `json:"state"`
		Error             string `json:"error"`
		GitHubBaseURL     string `json:"github_base_url"`
		GitLabBaseURL     string `json:"gitlab_base_url"`
		InfraweaveBaseURL string `json:"infraweave_base_url"`
		Fingerprint       string `json:"fingerprint"`
	}
	if !decode(body, &payload, stderr) {
		return 1
	}
	switch payload.State {
	case "ready":
		fmt.Fprintf(stdout, "state=ready github_base_url=%s gitlab_base_url=%s infraweave_base_url=%s fingerprint=%s\n",
			payload.GitHubBaseURL, payload.GitLabBaseURL, payload.InfraweaveBaseURL, payload.Fingerprint)
		return 0
	case "error":
		fmt.Fprintf(stdout, "state=error error=%s\n", payload.Error)
		return 1
	default:
		fmt.Fprintf(stdout, "state=%s\n", payload.State)
		return 0
	}
}

func handleSetup(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	sub := args[0]
	fs, common := newFlagSet("setup "+sub, stderr)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	g := common.gateway(stderr)

	switch sub {
	case "document":
		if fs.NArg() > 1 {
			fmt.Fprintln(stderr, "setup document takes at most one <url>")
			return 2
		}
		path := "/v1/setup/document"
		if fs.NArg() == 1 {
			path += "?url=" + url.QueryEscape(fs.Arg(0))
		}
		respBody, status, err := g.do(http.MethodGet, path, nil)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		if status != http.StatusOK {
			fmt.Fprintf(stderr, "request failed (%d): %s\n", status, errorMessage(respBody))
			return 1
		}
		_, _ = stdout.Write(respBody)
		return 0
	case "validate":
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "setup validate requires <url>")
			return 2
		}
		respBody, status, err := g.do(http.MethodPost, "/v1/setup/validate", map[string]string{"url": fs.Arg(0)})
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		if g.json {
			_, _ = stdout.Write(respBody)
		}
		switch status {
		case http.StatusOK:
			if !g.json {
				fmt.Fprintf(stdout, "valid=true url=%s\n", fs.Arg(0))
			}
			return 0
		case http.StatusUnprocessableEntity:
			if !g.json {
				fmt.Fprintf(stdout, "valid=false url=%s error=%s\n", fs.Arg(0), errorMessage(respBody))
			}
			return 1
		default:
			fmt.Fprintf(stderr, "request failed (%d): %s\n", status, errorMessage(respBody))
			return 1
		}
	case "create":
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "setup create requires <url>")
			return 2
		}
		if _, code, ok := g.call(http.MethodPost, "/v1/setup/entity", map[string]string{"url": fs.Arg(0)}, stdout, stderr); !ok {
			return code
		}
		fmt.Fprintf(stdout, "created configuration entity for %s\n", fs.Arg(0))
		return 0
	default:
		usage(stderr)
		return 2
	}
}

func handleProjects(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, common := newFlagSet("projects", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	g := common.gateway(stderr)
	body, code, ok := g.call(http.MethodGet, "/v1/infraweave/projects", nil, stdout, stderr)
	if !ok {
		return code
	}
	var projects []types.Project
	if !decode(body, &projects, stderr) {
		return 1
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tNAME\tREGIONS")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ProjectID, p.Name, strings.Join(p.Regions, ","))
	}
	_ = tw.Flush()
	return 0
}

func handleModules(kind string, args []string, stdout io.Writer, stderr io.Writer) int {
	fs, common := newFlagSet(kind, stderr)
	grouped := fs.Bool("grouped", false, "one row per "+strings.TrimSuffix(kind, "s")+" with the version on each track")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	g := common.gateway(stderr)

	path := "/v1/infraweave/" + kind
	if *grouped {
		path += "?grouped=true"
	}
	body, code, ok := g.call(http.MethodGet, path, nil, stdout, stderr)
	if !ok {
		return code
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	if *grouped {
		var rows []types.GroupedModule
		if !decode(body, &rows, stderr) {
			return 1
		}
		fmt.Fprintln(tw, "NAME\tDEV\tALPHA\tBETA\tSTABLE")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Module, dash(r.DevVersion), dash(r.AlphaVersion), dash(r.BetaVersion), dash(r.StableVersion))
		}
		return 0
	}
	var modules []types.Module
	if !decode(body, &modules, stderr) {
		return 1
	}
	fmt.Fprintln(tw, "NAME\tTRACK\tVERSION")
	for _, m := range modules {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Module, m.Track, m.Version)
	}
	return 0
}

func handlePolicies(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, common := newFlagSet("policies", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "policies requires at least one <env>")
		return 2
	}
	g := common.gateway(stderr)

	var policies []types.Policy
	exit := 0
	if fs.NArg() == 1 {
		body, code, ok := g.call(http.MethodGet, "/v1/infraweave/policies/"+url.PathEscape(fs.Arg(0)), nil, stdout, stderr)
		if !ok {
			return code
		}
		if !decode(body, &policies, stderr) {
			return 1
		}
	} else {
		body, code, ok := g.call(http.MethodPost, "/v1/infraweave/policies/batch", map[string][]string{"environments": fs.Args()}, stdout, stderr)
		if !ok {
			return code
		}
		var batch struct {
			Items    []types.Policy `json:"items"`
			Failures []struct {
				Target string `json:"target"`
				Error  string `json:"error"`
			} `json:"failures"`
		}
		if !decode(body, &batch, stderr) {
			return 1
		}
		policies = batch.Items
		for _, f := range batch.Failures {
			fmt.Fprintf(stderr, "%s: %s\n", f.Target, f.Error)
			exit = 1
		}
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENVIRONMENT\tPOLICY\tVERSION")
	for _, p := range policies {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Environment, p.Policy, p.Version)
	}
	_ = tw.Flush()
	return exit
}

func handleDeployments(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, common := newFlagSet("deployments", stderr)
	module := fs.String("module", "", "only deployments of this module")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "deployments requires <project> <region>")
		return 2
	}
	g := common.gateway(stderr)

	path := "/v1/infraweave/deployments/" + url.PathEscape(fs.Arg(0)) + "/" + url.PathEscape(fs.Arg(1))
	if *module != "" {
		path += "?module=" + url.QueryEscape(*module)
	}
	body, code, ok := g.call(http.MethodGet, path, nil, stdout, stderr)
	if !ok {
		return code
	}
	var deployments []types.Deployment
	if !decode(body, &deployments, stderr) {
		return 1
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPLOYMENT\tMODULE\tENVIRONMENT\tSTATUS")
	for _, d := range deployments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.DeploymentID, d.Module, d.Environment, d.Status)
	}
	_ = tw.Flush()
	return 0
}

func handleJournal(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, common := newFlagSet("journal", stderr)
	limit := fs.Int("limit", 0, "maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(stderr, "journal takes at most one <run_id>")
		return 2
	}
	g := common.gateway(stderr)

	if fs.NArg() == 1 {
		body, code, ok := g.call(http.MethodGet, "/v1/journal/"+url.PathEscape(fs.Arg(0)), nil, stdout, stderr)
		if !ok {
			return code
		}
		var run journal.Run
		if !decode(body, &run, stderr) {
			return 1
		}
		fmt.Fprintf(stdout, "run_id=%s\nkind=%s\nstatus=%s\nrepository=%s\nsource_branch=%s\ntarget_branch=%s\napplied_steps=%s\n",
			run.RunID, run.Kind, run.Status, run.Repository, run.SourceBranch, run.TargetBranch, strings.Join(run.AppliedSteps, ","))
		if run.FailedStep != nil {
			fmt.Fprintf(stdout, "failed_step=%s\n", *run.FailedStep)
		}
		if run.Error != nil {
			fmt.Fprintf(stdout, "error=%s\n", *run.Error)
		}
		if run.WebURL != nil {
			fmt.Fprintf(stdout, "web_url=%s\n", *run.WebURL)
		}
		fmt.Fprintf(stdout, "created_at=%s\nupdated_at=%s\n", run.CreatedAt, run.UpdatedAt)
		return 0
	}

	path := "/v1/journal"
	if *limit > 0 {
		path += "?limit=" + strconv.Itoa(*limit)
	}
	body, code, ok := g.call(http.MethodGet, path, nil, stdout, stderr)
	if !ok {
		return code
	}
	var payload struct {
		Runs []journal.Run `json:"runs"`
	}
	if !decode(body, &payload, stderr) {
		return 1
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tKIND\tSTATUS\tREPOSITORY\tSOURCE\tUPDATED")
	for _, r := range payload.Runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.RunID, r.Kind, r.Status, r.Repository, r.SourceBranch, r.UpdatedAt)
	}
	_ = tw.Flush()
	return 0
}

func handlePR(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	var path string
	switch args[0] {
	case "github":
		path = "/v1/github/pull-requests"
	case "gitlab":
		path = "/v1/gitlab/merge-requests"
	default:
		usage(stderr)
		return 2
	}

	fs, common := newFlagSet("pr "+args[0], stderr)
	repo := fs.String("repo", "", "repository (owner/name) or project path")
	source := fs.String("source", "", "branch to create")
	target := fs.String("target", "", "branch to merge into")
	title := fs.String("title", "", "pull/merge request title")
	description := fs.String("description", "", "pull/merge request description")
	file := fs.String("file", "", "path of the file to add in the repository")
	contentFile := fs.String("content-file", "", "local file with the content to commit")
	message := fs.String("message", "", "commit message")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if *repo == "" || *source == "" || *target == "" || *title == "" || *file == "" || *contentFile == "" || *message == "" {
		fmt.Fprintln(stderr, "pr requires --repo, --source, --target, --title, --file, --content-file and --message")
		return 2
	}
	// #nosec G304 -- operator-provided content file.
	content, err := os.ReadFile(*contentFile)
	if err != nil {
		fmt.Fprintln(stderr, "read content file:", err)
		return 1
	}
	g := common.gateway(stderr)

	opts := types.MergeRequestOptions{
		RepositoryPath: *repo,
		SourceBranch:   *source,
		TargetBranch:   *target,
		Title:          *title,
		Description:    *description,
		FilePath:       *file,
		FileContent:    string(content),
		CommitMessage:  *message,
	}
	respBody, status, err := g.do(http.MethodPost, path, opts)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if g.json {
		_, _ = stdout.Write(respBody)
		if status == http.StatusCreated {
			return 0
		}
		return 1
	}
	if status != http.StatusCreated {
		var failure struct {
			Error        string   `json:"error"`
			RunID        string   `json:"run_id"`
			FailedStep   string   `json:"failed_step"`
			AppliedSteps []string `json:"applied_steps"`
		}
		if !decode(respBody, &failure, stderr) {
			return 1
		}
		fmt.Fprintf(stderr, "request failed (%d): %s\n", status, failure.Error)
		if failure.FailedStep != "" {
			fmt.Fprintf(stderr, "run_id=%s failed_step=%s applied_steps=%s\n", failure.RunID, failure.FailedStep, strings.Join(failure.AppliedSteps, ","))
		}
		return 1
	}
	var mr types.MergeRequest
	if !decode(respBody, &mr, stderr) {
		return 1
	}
	fmt.Fprintf(stdout, "web_url=%s run_id=%s\n", mr.WebURL, mr.RunID)
	return 0
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
