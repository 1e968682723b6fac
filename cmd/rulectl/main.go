package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coffersTech/ruleast/internal/client"
	"github.com/coffersTech/ruleast/internal/model"
	"github.com/coffersTech/ruleast/internal/pkg/ruleql"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const usage = `Usage: rulectl [-addr URL] [-token TOKEN] <command> [args]

Commands:
  create <name> <rule>         store a rule
  combine <id> <id>...         combine stored rules into a new one
  list                         list stored rules
  show <id>                    show a stored rule
  eval <id> <field=value>...   evaluate a rule, e.g. eval 1 age=35 department=Sales
  dump <rule>                  print the parse tree of rule text without storing it
  stats                        show server statistics
`

func main() {
	addr := flag.String("addr", envOr("RULEAST_ADDR", "http://localhost:3000"), "Server address")
	token := flag.String("token", os.Getenv("RULEAST_TOKEN"), "API token for mutating commands")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, client.New(*addr, *token), flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "rulectl:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "create":
		if len(args) != 2 {
			return fmt.Errorf("usage: create <name> <rule>")
		}
		id, err := c.CreateRule(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Rule created with id %d\n", id)

	case "combine":
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		id, tree, err := c.CombineRules(ctx, ids)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Combined rule created with id %d\n", id)
		node, err := ruleql.Deserialize(tree)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ruleql.String(node))

	case "list":
		rules, err := c.ListRules(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderList(rules))

	case "show":
		id, err := parseID(args)
		if err != nil {
			return err
		}
		rule, err := c.GetRule(ctx, id)
		if err != nil {
			return err
		}
		node, err := ruleql.Deserialize(rule.Rule)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderRule(rule))
		fmt.Fprint(out, ruleql.Dump(node))

	case "eval":
		if len(args) < 1 {
			return fmt.Errorf("usage: eval <id> <field=value>...")
		}
		id, err := parseID(args[:1])
		if err != nil {
			return err
		}
		data, err := parseData(args[1:])
		if err != nil {
			return err
		}
		result, err := c.Evaluate(ctx, id, data)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, result)

	case "dump":
		if len(args) != 1 {
			return fmt.Errorf("usage: dump <rule>")
		}
		node, err := ruleql.Parse(args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(out, ruleql.Dump(node))

	case "stats":
		stats, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	return nil
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one rule id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rule id %q", args[0])
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("expected at least one rule id")
	}
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID([]string{a})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseData turns field=value pairs into a record. Values that parse as
// finite numbers are sent as numbers; quote them ('35') to send a string.
func parseData(pairs []string) (map[string]any, error) {
	data := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid field %q, want field=value", p)
		}
		if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
			data[k] = v[1 : len(v)-1]
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			data[k] = f
			continue
		}
		data[k] = v
	}
	return data, nil
}

func renderList(rules []model.Summary) string {
	tw := table.NewWriter()
	tw.SetTitle("RULES")
	tw.AppendHeader(table.Row{"ID", "Name"})
	for _, r := range rules {
		tw.AppendRow(table.Row{r.ID, r.RuleName})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d rules", len(rules))})

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	style.Format.Footer = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}

func renderRule(r model.Rule) string {
	tw := table.NewWriter()
	tw.AppendRow(table.Row{"ID", r.ID})
	tw.AppendRow(table.Row{"Name", r.RuleName})
	tw.AppendRow(table.Row{"Rule", r.RuleString})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 80},
	})
	tw.SetStyle(table.StyleLight)
	return tw.Render()
}
