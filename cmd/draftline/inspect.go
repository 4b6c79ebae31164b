package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/draftline/draftline/internal/config"
	"github.com/draftline/draftline/internal/engine/schema"
)

// newInspectCommand creates the inspect command group
func newInspectCommand() *cobra.Command {
	var (
		outputFormat string
		noColor      bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect the loaded schema registry",
		Long: `Inspect the schema registry referenced by draftline.yml.

Shows every accessible table with its control columns, versioning status
and declared fields, without touching the database.`,
		Example: `  # List accessible tables
  draftline inspect tables

  # Show one table in detail
  draftline inspect table article

  # JSON output for tooling
  draftline inspect tables --format json`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	cmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: json or table")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(&cobra.Command{
		Use:   "tables",
		Short: "List all accessible tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectTables(outputFormat)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "table <name>",
		Short: "Show one table in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectTable(args[0], outputFormat)
		},
	})

	return cmd
}

func loadRegistry() (*schema.Registry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	reg, err := schema.Load(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return reg, nil
}

type tableSummary struct {
	Name      string `json:"name"`
	Label     string `json:"label,omitempty"`
	Fields    int    `json:"fields"`
	Versioned bool   `json:"versioned"`
	ReadOnly  bool   `json:"readOnly,omitempty"`
}

func runInspectTables(format string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	summaries := make([]tableSummary, 0, reg.Count())
	for _, name := range reg.AccessibleTables() {
		t, _ := reg.Table(name)
		summaries = append(summaries, tableSummary{
			Name:      t.Name,
			Label:     t.Label,
			Fields:    len(t.Fields),
			Versioned: t.Versioned(),
			ReadOnly:  t.ReadOnly,
		})
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, s := range summaries {
		bold.Print(s.Name)
		if s.Label != "" {
			gray.Printf("  %s", s.Label)
		}
		fmt.Printf("  %d fields", s.Fields)
		if s.Versioned {
			fmt.Print("  versioned")
		}
		if s.ReadOnly {
			fmt.Print("  read-only")
		}
		fmt.Println()
	}
	gray.Printf("%d tables\n", len(summaries))
	return nil
}

type fieldSummary struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Required bool   `json:"required,omitempty"`
	Relation string `json:"relation,omitempty"`
}

type tableDetail struct {
	tableSummary
	PrimaryKey string         `json:"primaryKey"`
	FieldList  []fieldSummary `json:"fieldList"`
}

func runInspectTable(name, format string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	t, ok := reg.Table(name)
	if !ok || !reg.IsTableAccessible(name) {
		return fmt.Errorf("unknown table: %s", name)
	}

	fieldNames := make([]string, 0, len(t.Fields))
	for fn := range t.Fields {
		fieldNames = append(fieldNames, fn)
	}
	sort.Strings(fieldNames)

	detail := tableDetail{
		tableSummary: tableSummary{
			Name:      t.Name,
			Label:     t.Label,
			Fields:    len(t.Fields),
			Versioned: t.Versioned(),
			ReadOnly:  t.ReadOnly,
		},
		PrimaryKey: t.Control.PrimaryKey,
	}
	for _, fn := range fieldNames {
		f := t.Fields[fn]
		fs := fieldSummary{
			Name:     f.Name,
			Kind:     f.Kind.String(),
			Required: f.Constraints.Required,
		}
		if f.IsRelation() {
			fs.Relation = fmt.Sprintf("%s %s", f.Relation.Shape, f.Relation.TargetTable)
		}
		detail.FieldList = append(detail.FieldList, fs)
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	}

	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)

	bold.Println(t.Name)
	if t.Label != "" {
		gray.Printf("  %s\n", t.Label)
	}
	fmt.Printf("  primary key: %s\n", t.Control.PrimaryKey)
	if t.Versioned() {
		fmt.Printf("  versioned: %s / %s / %s\n",
			t.Control.Origin, t.Control.DraftState, t.Control.Workspace)
	}
	for _, fs := range detail.FieldList {
		cyan.Printf("  %-24s", fs.Name)
		fmt.Print(fs.Kind)
		if fs.Required {
			fmt.Print("  required")
		}
		if fs.Relation != "" {
			gray.Printf("  -> %s", fs.Relation)
		}
		fmt.Println()
	}
	return nil
}
