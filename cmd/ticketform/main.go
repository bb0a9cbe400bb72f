package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/goliatone/go-ticketform/pkg/openapi"
	"github.com/goliatone/go-ticketform/pkg/render"
	"github.com/goliatone/go-ticketform/pkg/schema"
	"github.com/goliatone/go-ticketform/pkg/session"
	"github.com/goliatone/go-ticketform/pkg/store"
	"github.com/goliatone/go-ticketform/pkg/tui"
)

func main() {
	schemasDir := flag.String("schemas", "schemas", "directory holding form schema documents")
	schemaRef := flag.String("schema", "", "schema ref (filename stem) to load")
	openapiPath := flag.String("openapi", "", "OpenAPI document to derive the schema from")
	operation := flag.String("operation", "", "operation id when deriving from an OpenAPI document")
	valuesPath := flag.String("values", "", "JSON file with initial field values")
	fill := flag.Bool("fill", false, "fill the form interactively")
	renderHTML := flag.Bool("render", false, "render the form as HTML instead of printing the snapshot")
	output := flag.String("output", "", "output file (stdout if empty)")
	verbose := flag.Bool("verbose", false, "log session activity")
	flag.Parse()

	ctx := context.Background()

	compiled, err := loadSchema(ctx, *schemasDir, *schemaRef, *openapiPath, *operation)
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}

	initial, err := loadValues(*valuesPath)
	if err != nil {
		log.Fatalf("Failed to load values: %v", err)
	}

	var opts []session.Option
	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("Failed to build logger: %v", err)
		}
		defer logger.Sync()
		opts = append(opts, session.WithLogger(logger))
	}

	sess, err := session.New(compiled, initial, opts...)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	defer sess.Close()

	var out []byte
	switch {
	case *fill:
		values, err := tui.NewFiller().Run(ctx, sess)
		if err != nil {
			log.Fatalf("Failed to fill form: %v", err)
		}
		if out, err = json.MarshalIndent(values, "", "  "); err != nil {
			log.Fatalf("Failed to encode values: %v", err)
		}
		out = append(out, '\n')
	case *renderHTML:
		renderer, err := render.NewHTML()
		if err != nil {
			log.Fatalf("Failed to build renderer: %v", err)
		}
		if out, err = renderer.Render(compiled, sess.Snapshot()); err != nil {
			log.Fatalf("Failed to render form: %v", err)
		}
	default:
		if out, err = json.MarshalIndent(sess.Snapshot(), "", "  "); err != nil {
			log.Fatalf("Failed to encode snapshot: %v", err)
		}
		out = append(out, '\n')
	}

	if *output != "" {
		if err := os.WriteFile(*output, out, 0o644); err != nil {
			log.Fatalf("Failed to write output: %v", err)
		}
		fmt.Printf("Written to %s\n", *output)
		return
	}
	os.Stdout.Write(out)
}

func loadSchema(ctx context.Context, schemasDir, schemaRef, openapiPath, operation string) (*schema.CompiledSchema, error) {
	switch {
	case schemaRef != "" && openapiPath != "":
		return nil, fmt.Errorf("-schema and -openapi are mutually exclusive")
	case schemaRef != "":
		schemas, err := store.NewDirSchemaStore(schemasDir)
		if err != nil {
			return nil, err
		}
		return schemas.LoadSchema(ctx, schemaRef)
	case openapiPath != "":
		if operation == "" {
			return nil, fmt.Errorf("-operation is required with -openapi")
		}
		raw, err := os.ReadFile(openapiPath)
		if err != nil {
			return nil, err
		}
		return openapi.DeriveCompile(ctx, raw, operation)
	default:
		return nil, fmt.Errorf("one of -schema or -openapi is required")
	}
}

func loadValues(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any)
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return values, nil
}
