// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // register postgres driver
	"github.com/spf13/cobra"

	"pipjoin/join"
	"pipjoin/utils/httputils"
)

// Register backend selectors.
const (
	registerDB    = "db"
	registerLDAPI = "ldapi"
)

type joinOptions struct {
	// polygon service
	Endpoint      string
	Layer         string
	GeometryField string
	LayerID       string
	NSShort       string
	NSURL         string
	Predicate     string

	// identifier register
	Register         string
	RegisterEndpoint string
	DBDriver         string
	CountQuery       string
	IDsQuery         string
	PointQuery       string

	// batching
	StartPage   int
	StopPage    int
	PageSize    int
	Concurrency int
	StartSeq    int64

	// output
	OutputFile string

	// diagnostics
	EnableHTTPTrace     bool
	EnableHTTPBodyTrace bool
}

var joinOpts = &joinOptions{}

func (o *joinOptions) validate() error {
	var missing []string

	for flag, value := range map[string]string{
		"endpoint":          o.Endpoint,
		"layer":             o.Layer,
		"geom":              o.GeometryField,
		"layer-id":          o.LayerID,
		"register-endpoint": o.RegisterEndpoint,
		"output":            o.OutputFile,
	} {
		if value == "" {
			missing = append(missing, "--"+flag)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}

	if o.Register != registerDB && o.Register != registerLDAPI {
		return fmt.Errorf("unknown register backend %q, want %q or %q", o.Register, registerDB, registerLDAPI)
	}

	if o.StopPage <= o.StartPage {
		return fmt.Errorf("stop page %d must be greater than start page %d", o.StopPage, o.StartPage)
	}

	return nil
}

// newHTTPClient assembles the outbound client shared by the register and
// the polygon service: bounded connection pool, User-Agent injection and
// optional request tracing.
func newHTTPClient(o *joinOptions) *http.Client {
	var httpLogWriter io.Writer
	if o.EnableHTTPTrace {
		httpLogWriter = os.Stderr
	}

	transport := &http.Transport{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		MaxConnsPerHost:       4,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	loggingTransport := &httputils.LoggingRoundTripper{
		Writer:    httpLogWriter,
		DumpBody:  o.EnableHTTPBodyTrace,
		Transport: transport,
	}

	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &httputils.AppendRequestHeadersRoundTripper{
			Headers: map[string]string{
				"User-Agent": fmt.Sprintf("pipjoin/%s (+https://github.com/pipjoin/pipjoin)", Version),
			},
			Transport: loggingTransport,
		},
	}
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Resolve the containing polygon for every record of the register",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := joinOpts.validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		client := newHTTPClient(joinOpts)

		var register join.Register

		switch joinOpts.Register {
		case registerDB:
			db, err := sql.Open(joinOpts.DBDriver, joinOpts.RegisterEndpoint)
			if err != nil {
				return fmt.Errorf("opening register database: %w", err)
			}
			defer db.Close()

			register, err = join.NewDBRegister(ctx, db, join.Queries{
				Count:       joinOpts.CountQuery,
				SelectIDs:   joinOpts.IDsQuery,
				SelectPoint: joinOpts.PointQuery,
			})
			if err != nil {
				return err
			}
		case registerLDAPI:
			register = join.NewLinkedDataRegister(joinOpts.RegisterEndpoint, client)
		}

		matcher := join.NewWFSMatcher(join.WFSOptions{
			URL:           joinOpts.Endpoint,
			Layer:         joinOpts.Layer,
			GeometryField: joinOpts.GeometryField,
			LayerID:       joinOpts.LayerID,
			NSShort:       joinOpts.NSShort,
			NSURL:         joinOpts.NSURL,
		}, client)

		coordinator := join.NewCoordinator(
			register,
			matcher,
			join.NewFileSink(joinOpts.OutputFile),
			join.Options{
				StartPage:   joinOpts.StartPage,
				StopPage:    joinOpts.StopPage,
				PageSize:    joinOpts.PageSize,
				Concurrency: joinOpts.Concurrency,
				StartSeq:    joinOpts.StartSeq,
				Predicate:   joinOpts.Predicate,
			},
		)

		return coordinator.Run(ctx)
	},
}

// envDefault returns the value of the environment variable when set,
// allowing every flag to be driven from the environment or a .env file.
func envDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return fallback
}

func envDefaultInt(key string, fallback int) int {
	var n int
	if _, err := fmt.Sscanf(os.Getenv(key), "%d", &n); err == nil {
		return n
	}

	return fallback
}

func init() {
	// Flag defaults may come from the environment, so the .env file has
	// to be read before the flags are registered.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
	}

	rootCmd.AddCommand(joinCmd)

	flags := joinCmd.Flags()

	flags.StringVar(&joinOpts.Endpoint, "endpoint", envDefault("PIPJOIN_ENDPOINT", ""), "URL of the WFS polygon service")
	flags.StringVar(&joinOpts.Layer, "layer", envDefault("PIPJOIN_LAYER", ""), "Name of the polygon layer to query, including prefix")
	flags.StringVar(&joinOpts.GeometryField, "geom", envDefault("PIPJOIN_GEOM", ""), "Name of the geometry attribute used for PIP")
	flags.StringVar(&joinOpts.LayerID, "layer-id", envDefault("PIPJOIN_LAYER_ID", ""), "Name of the identifier attribute, including prefix")
	flags.StringVar(&joinOpts.NSShort, "ns-short", envDefault("PIPJOIN_NS_SHORT", ""), "Namespace prefix of the identifier attribute")
	flags.StringVar(&joinOpts.NSURL, "ns-url", envDefault("PIPJOIN_NS_URL", ""), "Namespace URL of the identifier attribute")
	flags.StringVar(&joinOpts.Predicate, "function", envDefault("PIPJOIN_FUNCTION", "Contains"), "Spatial predicate forwarded to the polygon service")

	flags.StringVar(&joinOpts.Register, "register", envDefault("PIPJOIN_REGISTER", registerDB), "Register backend: db or ldapi")
	flags.StringVar(&joinOpts.RegisterEndpoint, "register-endpoint", envDefault("PIPJOIN_REGISTER_ENDPOINT", ""), "Register connection string (db) or listing URL (ldapi)")
	flags.StringVar(&joinOpts.DBDriver, "db-driver", envDefault("PIPJOIN_DB_DRIVER", "postgres"), "Database driver for the db register: postgres or duckdb")
	flags.StringVar(&joinOpts.CountQuery, "count-query", envDefault("PIPJOIN_COUNT_QUERY", ""), "Override for the record count query")
	flags.StringVar(&joinOpts.IDsQuery, "ids-query", envDefault("PIPJOIN_IDS_QUERY", ""), "Override for the paginated identifier query (limit, offset)")
	flags.StringVar(&joinOpts.PointQuery, "point-query", envDefault("PIPJOIN_POINT_QUERY", ""), "Override for the point lookup query (id)")

	flags.IntVar(&joinOpts.StartPage, "start", envDefaultInt("PIPJOIN_START", 1), "First register page to process")
	flags.IntVar(&joinOpts.StopPage, "stop", envDefaultInt("PIPJOIN_STOP", 0), "Page index at which to halt")
	flags.IntVar(&joinOpts.PageSize, "page-size", envDefaultInt("PIPJOIN_PAGE_SIZE", 10), "Number of identifiers per register page")
	flags.IntVar(&joinOpts.Concurrency, "concurrency", envDefaultInt("PIPJOIN_CONCURRENCY", 10), "Maximum number of in-flight resolutions")
	flags.Int64Var(&joinOpts.StartSeq, "seq-start", int64(envDefaultInt("PIPJOIN_SEQ_START", 1)), "Sequence number assigned to the first record")

	flags.StringVar(&joinOpts.OutputFile, "output", envDefault("PIPJOIN_OUTPUT", ""), "Output file, appended to")

	flags.BoolVar(&joinOpts.EnableHTTPTrace, "trace-http", false, "Display HTTP requests-responses")
	flags.BoolVar(&joinOpts.EnableHTTPBodyTrace, "trace-http-body", false, "Display HTTP requests-responses bodies")
}
