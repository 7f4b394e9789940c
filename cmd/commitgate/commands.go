package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/commitgate/internal/config"
	"github.com/mattjoyce/commitgate/internal/ledger"
	"github.com/mattjoyce/commitgate/internal/secrets"
	"github.com/mattjoyce/commitgate/internal/signature"
	"github.com/mattjoyce/commitgate/internal/webhook"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	fmt.Printf("Config: %s\n", cfg.SourcePath)
	failed := false
	pass := func(msg string) { fmt.Printf("  %s %s\n", passStyle.Render("PASS"), msg) }
	fail := func(msg string, err error) {
		failed = true
		fmt.Printf("  %s %s: %v\n", failStyle.Render("FAIL"), msg, err)
	}

	pass("configuration valid")

	if _, err := signature.New(cfg.Signature.Scheme, cfg.Signature.Encoding); err != nil {
		fail("signature settings", err)
	} else {
		pass(fmt.Sprintf("signature scheme %s (%s)", cfg.Signature.Scheme, cfg.Signature.Encoding))
	}

	provider, err := buildSecrets(cfg)
	if err != nil {
		fail("secrets", err)
	} else {
		refs := cfg.RequiredSecretRefs()
		if cfg.Ops.TokenRef != "" {
			refs = append(refs, cfg.Ops.TokenRef)
		}
		ctx := context.Background()
		for _, ref := range refs {
			if _, err := secrets.Require(ctx, provider, ref); err != nil {
				fail("secret "+ref, err)
				continue
			}
			pass("secret " + ref)
		}
	}

	if failed {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	// Not config.Load: locking is how an edited, now-mismatched file is
	// re-authorized.
	file, err := resolveConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config: %v\n", err)
		return 1
	}
	dir := filepath.Dir(file)

	report, err := config.Lock(dir, []string{filepath.Base(file)}, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config in %s: %v\n", dir, err)
		return 1
	}

	if verbose || verboseShort {
		for _, f := range report.Files {
			if f.Exists {
				fmt.Printf("  HASH %s: %s\n", f.Filename, f.Hash)
				continue
			}
			fmt.Printf("  SKIP %s: not found\n", f.Filename)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed (no files written): %s\n", report.ChecksumPath)
	} else {
		fmt.Printf("Successfully locked configuration: %s\n", report.ChecksumPath)
	}
	return 0
}

func runConfigShow(args []string) int {
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	var path string
	var remainingArgs []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") && path == "" && !isFlagValue(remainingArgs) {
			path = arg
		} else {
			remainingArgs = append(remainingArgs, arg)
		}
	}
	if err := fs.Parse(remainingArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOut {
		return printJSON(val)
	}
	switch val.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(val)
		if err != nil {
			fmt.Fprintf(os.Stderr, "YAML format error: %v\n", err)
			return 1
		}
		fmt.Print(string(data))
	default:
		fmt.Printf("%v\n", val)
	}
	return 0
}

func resolveConfigFile(configPath string) (string, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return "", err
		}
		configPath = discovered
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		abs = filepath.Join(abs, "config.yaml")
		if _, err := os.Stat(abs); err != nil {
			return "", err
		}
	}
	return abs, nil
}

func runVerdictList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	repository := fs.String("repository", "", "Only verdicts for OWNER/NAME")
	limit := fs.Int("limit", 20, "Maximum number of verdicts")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	entries, err := queryVerdicts(*configPath, ledger.Filter{Repository: *repository, Limit: *limit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		return 1
	}

	if *jsonOut {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No verdicts recorded.")
		return 0
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format(time.DateTime),
			e.Repository,
			shortSHA(e.SHA),
			e.Conclusion,
			e.Reason,
			yesNo(e.Reported),
		})
	}
	fmt.Println(renderTable([]string{"TIME", "REPOSITORY", "SHA", "CONCLUSION", "REASON", "REPORTED"}, rows))
	return 0
}

func runVerdictShow(args []string) int {
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	// The SHA may come before or after the flags.
	var sha string
	var remainingArgs []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") && sha == "" && !isFlagValue(remainingArgs) {
			sha = arg
		} else {
			remainingArgs = append(remainingArgs, arg)
		}
	}
	if err := fs.Parse(remainingArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if sha == "" {
		fmt.Fprintf(os.Stderr, "Usage: commitgate verdict show <sha> [--config PATH] [--json]\n")
		return 1
	}

	entries, err := queryVerdicts(configPath, ledger.Filter{SHA: sha, Limit: 100})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Fprintf(os.Stderr, "No verdicts recorded for %s\n", sha)
		return 1
	}

	if jsonOut {
		return printJSON(entries)
	}
	for i, e := range entries {
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(renderTable([]string{"FIELD", "VALUE"}, entryRows(e)))
	}
	return 0
}

// isFlagValue reports whether the next argument belongs to a preceding
// value flag such as --config.
func isFlagValue(prev []string) bool {
	if len(prev) == 0 {
		return false
	}
	last := prev[len(prev)-1]
	return last == "--config" || last == "-config"
}

func runWebhookSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	secretRef := fs.String("secret-ref", "", "Secret name (defaults to webhook.secret_ref)")
	file := fs.String("file", "", "Payload file (defaults to stdin)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	var provider secrets.Provider
	ref := *secretRef
	if *configPath == "" && ref != "" {
		env, err := secrets.NewEnvProvider("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Secrets error: %v\n", err)
			return 1
		}
		provider = env
	} else {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
			return 1
		}
		if ref == "" {
			ref = cfg.Webhook.SecretRef
		}
		if provider, err = buildSecrets(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Secrets error: %v\n", err)
			return 1
		}
	}

	vals, err := secrets.Require(context.Background(), provider, ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Secrets error: %v\n", err)
		return 1
	}

	var body []byte
	if *file != "" {
		body, err = os.ReadFile(*file)
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload: %v\n", err)
		return 1
	}

	fmt.Println(webhook.Sign(body, vals[ref]))
	return 0
}

func queryVerdicts(configPath string, f ledger.Filter) ([]ledger.Entry, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	db, store, err := openLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return store.List(ctx, f)
}

func entryRows(e ledger.Entry) [][]string {
	rows := [][]string{
		{"invocation", e.InvocationID},
		{"delivery", e.DeliveryID},
		{"recorded", e.CreatedAt.Local().Format(time.RFC3339)},
		{"repository", e.Repository},
		{"sha", e.SHA},
		{"author", e.AuthorEmail},
		{"device", e.DeviceID},
		{"certificate", e.CertFingerprint},
		{"conclusion", e.Conclusion},
		{"reason", e.Reason},
		{"detail", e.Detail},
		{"indeterminate", yesNo(e.Indeterminate)},
		{"reported", yesNo(e.Reported)},
		{"report error", e.ReportError},
		{"duration", (time.Duration(e.DurationMS) * time.Millisecond).String()},
	}
	out := rows[:0]
	for _, r := range rows {
		if r[1] != "" {
			out = append(out, r)
		}
	}
	return out
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
