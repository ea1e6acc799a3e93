package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"

	"loom/internal/toolui/render"
	"loom/internal/toolui/schema"
	"loom/internal/toolui/surface"
)

const defaultRenderWidth = 80

var errLayoutNotTable = errors.New("--layout applies to data-table payloads only")

type renderOptions struct {
	Width   int
	Layout  string
	Locale  string
	Loading bool
	Theme   string
}

func newRenderCmd() *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Validate a Tool-UI payload file (JSON or YAML) and print its rendering",
		Long:  `Validate a Tool-UI payload and print it as it would appear in the chat. Use "-" to read standard input.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPayload(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			out, err := renderPayload(cmd.Context(), raw, opts)
			if out != "" {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&opts.Width, "width", defaultRenderWidth, "Terminal width in cells")
	cmd.Flags().StringVar(&opts.Layout, "layout", "", "Override a data table layout: auto, table or cards")
	cmd.Flags().StringVar(&opts.Locale, "locale", "en-US", "BCP-47 locale for number and date formatting")
	cmd.Flags().BoolVar(&opts.Loading, "loading", false, "Render a data table in its loading state")
	cmd.Flags().StringVar(&opts.Theme, "theme", "dark", "Theme: dark, light or plain")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	var tool bool

	kinds := make([]string, 0, len(schema.SurfaceKinds()))
	for _, k := range schema.SurfaceKinds() {
		kinds = append(kinds, string(k))
	}

	cmd := &cobra.Command{
		Use:       "schema <surface>",
		Short:     "Print the JSON Schema of a surface kind",
		Long:      "Print the JSON Schema of a surface kind (" + strings.Join(kinds, ", ") + ").",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := schema.SurfaceKind(strings.TrimSpace(args[0]))
			var (
				doc []byte
				err error
			)
			if tool {
				doc, err = schema.ToolInputSchema(kind)
			} else {
				doc, err = schema.SchemaJSON(kind)
			}
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, doc, "", "  "); err != nil {
				return fmt.Errorf("format schema: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&tool, "tool", false, "Print the model tool input schema instead")
	return cmd
}

// readPayload reads a payload file and returns it as JSON. YAML is accepted
// by extension, or whenever the content is not JSON.
func readPayload(path string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlToJSON(data)
	case ".json":
		return data, nil
	}
	if gjson.ValidBytes(data) {
		return data, nil
	}
	return yamlToJSON(data)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml payload: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert yaml payload: %w", err)
	}
	return out, nil
}

// renderPayload validates raw and paints it. An invalid payload yields its
// fallback block together with the validation error.
func renderPayload(ctx context.Context, raw []byte, opts renderOptions) (string, error) {
	kind := schema.SurfaceKind(gjson.GetBytes(raw, "surface").String())
	if layout := strings.TrimSpace(opts.Layout); layout != "" {
		if kind != schema.SurfaceDataTable {
			return "", errLayoutNotTable
		}
		var err error
		if raw, err = sjson.SetBytes(raw, "layout", layout); err != nil {
			return "", fmt.Errorf("set layout: %w", err)
		}
	}

	ropts := surface.RenderOptions{Width: opts.Width, Theme: render.ResolveTheme(opts.Theme)}
	host := surface.NewHost(surface.WithLocale(opts.Locale))
	e, err := host.Add(ctx, raw)
	if err != nil {
		return surface.FallbackFor(kind, err, ropts), err
	}
	if opts.Loading && e.Table != nil {
		e.Table.SetLoading(true)
	}
	return host.Render(e.ID, ropts), nil
}
