// Command mongosql runs a single SQL statement against a document store and
// prints the resulting rows, for manual exercising of the translation
// pipeline outside of Go code.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/kitfactory/mongosql"
	"github.com/kitfactory/mongosql/binder"
	"github.com/kitfactory/mongosql/exec"
	"github.com/kitfactory/mongosql/internal/obslog"
)

func main() {
	uri := flag.String("uri", "mongodb://localhost:27017", "store connection URI")
	db := flag.String("db", "", "database name (required)")
	sql := flag.String("sql", "", "SQL statement to run (required)")
	params := flag.String("params", "", "comma-separated positional parameter values")
	logFile := flag.String("log-file", "", "path to a rotating log file; stderr if unset")
	debug := flag.Bool("debug", false, "enable debug-level logging")
	flag.Parse()

	if *db == "" || *sql == "" {
		fmt.Fprintln(os.Stderr, "usage: mongosql -db <name> -sql <statement> [-uri ...] [-params a,b,c]")
		os.Exit(2)
	}

	logger, err := obslog.New(obslog.Config{LogFile: *logFile, Debug: *debug})
	if err != nil {
		log.Fatalf("mongosql: logger setup failed: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	conn, err := mongosql.Connect(ctx, *uri, *db, mongosql.WithLogger(logger))
	if err != nil {
		log.Fatalf("mongosql: connect failed: %v", err)
	}
	defer conn.Close(ctx)

	cur := conn.Cursor()
	defer cur.Close()

	if err := cur.Execute(ctx, *sql, parseParams(*params)); err != nil {
		log.Fatalf("mongosql: execute failed: %v", err)
	}

	rowCount := cur.RowCount()
	if rowCount < 0 {
		fmt.Println("OK")
		return
	}

	rows, err := cur.FetchAll()
	if err != nil {
		log.Fatalf("mongosql: fetch failed: %v", err)
	}
	printRows(cur.Description(), rows)
}

func parseParams(raw string) binder.Params {
	if raw == "" {
		return binder.Params{}
	}
	parts := strings.Split(raw, ",")
	values := make([]any, len(parts))
	for i, p := range parts {
		values[i] = p
	}
	return binder.Params{Positional: values}
}

func printRows(columns []exec.ColumnInfo, rows [][]any) {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	fmt.Println(strings.Join(names, "\t"))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, v := range row {
			b, err := json.Marshal(v)
			if err != nil {
				encoded[i] = fmt.Sprintf("%v", v)
				continue
			}
			encoded[i] = string(b)
		}
		fmt.Println(strings.Join(encoded, "\t"))
	}
}
