package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/model"
	"github.com/roach88/linkage/internal/pagination"
	"github.com/roach88/linkage/internal/resource"
)

// PageOptions holds flags for the page command.
type PageOptions struct {
	*RootOptions
	SchemaDir string
	DBPath    string
	Number    int64
	Size      int64
	Sort      string
	Filters   []string
}

// PageResult is one page of a resource listing.
type PageResult struct {
	Type        string           `json:"type"`
	Records     []ir.IRObject    `json:"records"`
	Number      int64            `json:"number"`
	Size        int64            `json:"size"`
	RecordCount int64            `json:"record_count"`
	PageCount   int64            `json:"page_count"`
	Links       pagination.Links `json:"links"`
}

// NewPageCommand creates the page command.
func NewPageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "page <type>",
		Short: "List one page of a resource",
		Long: `List one page of records of a resource type, with the pagination links
a client would follow. Page number and size default to the pagination
section of the config file; the size is capped at pagination.max_size.
A page number past the end is clamped to the last page.

Examples:
  linkage page posts
  linkage page posts --sort -title --number 2 --size 5
  linkage page tags --filter locked=false --filter slug=go,sql`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPage(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SchemaDir, "schema", "", "schema directory (default schema.dir from config)")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "database file (default database.path from config)")
	cmd.Flags().Int64Var(&opts.Number, "number", 0, "page number")
	cmd.Flags().Int64Var(&opts.Size, "size", 0, "page size")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "comma-separated sort fields, '-' prefix for descending")
	cmd.Flags().StringArrayVar(&opts.Filters, "filter", nil, "field=value equality filter; commas give a list (repeatable)")

	return cmd
}

func runPage(opts *PageOptions, typeName string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	filters, err := parseFilters(opts.Filters)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --filter", err)
	}

	dir := opts.SchemaDir
	if dir == "" {
		dir = opts.Config.SchemaDir()
	}
	reg, err := loadRegistry(dir)
	if err != nil {
		return err
	}
	typ, err := reg.Lookup(typeName)
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown resource type", err)
	}

	st, err := openStore(opts.RootOptions, opts.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	c := resource.New(typ, model.New(st, reg))
	ds, err := resource.Filter(c.Index(), filters)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --filter", err)
	}
	ds, err = resource.Sort(ds, resource.ParseSort(opts.Sort))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --sort", err)
	}

	page, links, err := opts.Config.Paginator().PageOf(ctx, ds, pagination.Options{Number: opts.Number, Size: opts.Size})
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}
	opts.Logger.Debug("paged", "type", typeName, "number", page.CurrentPage, "size", page.PageSize, "count", page.PaginationRecordCount)

	result := PageResult{
		Type:        typeName,
		Records:     make([]ir.IRObject, len(page.Records)),
		Number:      page.CurrentPage,
		Size:        page.PageSize,
		RecordCount: page.PaginationRecordCount,
		PageCount:   page.PageCount,
		Links:       links,
	}
	for i, rec := range page.Records {
		result.Records[i] = rec.Values()
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	return outputPageText(formatter, result)
}

func outputPageText(formatter *OutputFormatter, result PageResult) error {
	w := formatter.Writer
	for _, rec := range result.Records {
		fmt.Fprintln(w, ir.String(rec))
	}
	fmt.Fprintf(w, "\nPage %d of %d (%d %s)\n", result.Number, result.PageCount, result.RecordCount, result.Type)

	names := make([]string, 0, len(result.Links))
	for name := range result.Links {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-5s number=%d size=%d\n", name, result.Links[name].Number, result.Links[name].Size)
	}
	return nil
}

// parseFilters parses field=value pairs. Values are YAML scalars, so
// "true", "3" and "null" keep their types; a comma separates alternatives.
func parseFilters(raw []string) (ir.IRObject, error) {
	out := ir.IRObject{}
	for _, f := range raw {
		field, value, ok := strings.Cut(f, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("%q: expected field=value", f)
		}
		parts := strings.Split(value, ",")
		vals := make(ir.IRArray, len(parts))
		for i, p := range parts {
			var decoded any
			if err := yaml.Unmarshal([]byte(p), &decoded); err != nil {
				return nil, fmt.Errorf("%q: %w", f, err)
			}
			v, err := ir.FromAny(decoded)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", f, err)
			}
			vals[i] = v
		}
		if len(vals) == 1 {
			out[field] = vals[0]
		} else {
			out[field] = vals
		}
	}
	return out, nil
}
