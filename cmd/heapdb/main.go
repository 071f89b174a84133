// Command heapdb is a small interactive harness over the storage engine.
// It deliberately speaks a tiny command language instead of SQL; the SQL
// front end is outside this engine's scope.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mit.edu/dsg/heapdb"
	"mit.edu/dsg/heapdb/catalog"
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/execution"
	"mit.edu/dsg/heapdb/storage"
)

var (
	flagDataDir   string
	flagPoolPages int
	flagSchema    string
	flagVerbose   bool
)

func main() {
	root := &cobra.Command{
		Use:   "heapdb",
		Short: "heapdb interactive shell",
		Long: "Opens a heapdb data directory and starts an interactive shell.\n" +
			"Commands: tables, scan, filter, insert, delete, count, orderby, help, quit.",
		RunE: run,
	}
	flags := root.Flags()
	flags.StringVarP(&flagDataDir, "data-dir", "d", "heapdb-data", "database directory")
	flags.IntVarP(&flagPoolPages, "pool-pages", "p", common.DefaultPoolPages, "buffer pool capacity in pages")
	flags.StringVarP(&flagSchema, "schema", "s", "", "schema file to load on startup")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	flags.SortFlags = false
	pflag.CommandLine.AddFlagSet(flags)

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagVerbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	db, err := heapdb.Open(flagDataDir, flagPoolPages)
	if err != nil {
		return err
	}
	defer db.Close()

	if flagSchema != "" {
		if err := db.LoadSchema(flagSchema); err != nil {
			return err
		}
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("heapdb> ")
		if err == io.EOF || err == liner.ErrPromptAborted {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		fields := strings.Fields(input)
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := dispatch(db, fields); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func dispatch(db *heapdb.Database, fields []string) error {
	switch fields[0] {
	case "help":
		fmt.Println("tables")
		fmt.Println("scan <table>")
		fmt.Println("filter <table> <col> <op> <value>")
		fmt.Println("insert <table> <value>...")
		fmt.Println("delete <table> [<col> <op> <value>]")
		fmt.Println("count <table> [<col>]")
		fmt.Println("orderby <table> <col> [desc]")
		fmt.Println("quit")
		return nil
	case "tables":
		return listTables(db)
	case "scan", "filter", "insert", "delete", "count", "orderby":
		return inTransaction(db, fields)
	}
	return fmt.Errorf("unknown command %q (try help)", fields[0])
}

func listTables(db *heapdb.Database) error {
	w := tablewriter.NewWriter(os.Stdout)
	w.SetHeader([]string{"table", "id", "schema", "pages"})
	db.Catalog.Range(func(t *catalog.Table) bool {
		w.Append([]string{
			t.Name,
			fmt.Sprintf("%d", t.ID()),
			t.Desc().String(),
			fmt.Sprintf("%d", t.DBFile().NumPages()),
		})
		return true
	})
	w.Render()
	return nil
}

// inTransaction runs one shell command as one transaction, committing on
// success and aborting on any error.
func inTransaction(db *heapdb.Database, fields []string) error {
	tid := db.Begin()
	err := execCommand(db, tid, fields)
	if err != nil {
		if abortErr := db.Abort(tid); abortErr != nil {
			logrus.WithError(abortErr).Warn("abort failed")
		}
		return err
	}
	return db.Commit(tid)
}

func execCommand(db *heapdb.Database, tid common.TransactionID, fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("usage: %s <table> ... (try help)", fields[0])
	}
	table, err := db.Catalog.GetTable(fields[1])
	if err != nil {
		return err
	}
	scan := execution.NewSeqScan(tid, table.DBFile(), "")

	var plan execution.Operator
	switch fields[0] {
	case "scan":
		plan = scan
	case "filter":
		if len(fields) != 5 {
			return fmt.Errorf("usage: filter <table> <col> <op> <value>")
		}
		pred, err := parsePredicate(table.Desc(), fields[2], fields[3], fields[4])
		if err != nil {
			return err
		}
		plan = execution.NewFilter(pred, scan)
	case "insert":
		t, err := parseTuple(table.Desc(), fields[2:])
		if err != nil {
			return err
		}
		plan = execution.NewInsert(tid, newSingleton(t), db.BufferPool, table.ID())
	case "delete":
		child := execution.Operator(scan)
		if len(fields) == 5 {
			pred, err := parsePredicate(table.Desc(), fields[2], fields[3], fields[4])
			if err != nil {
				return err
			}
			child = execution.NewFilter(pred, scan)
		} else if len(fields) != 2 {
			return fmt.Errorf("usage: delete <table> [<col> <op> <value>]")
		}
		plan = execution.NewDelete(tid, child, db.BufferPool)
	case "count":
		col := 0
		if len(fields) == 3 {
			if col = table.Desc().IndexOf(fields[2]); col < 0 {
				return fmt.Errorf("no column %q", fields[2])
			}
		}
		plan = execution.NewAggregate(scan, col, execution.NoGrouping, execution.AggCount)
	case "orderby":
		if len(fields) < 3 {
			return fmt.Errorf("usage: orderby <table> <col> [desc]")
		}
		col := table.Desc().IndexOf(fields[2])
		if col < 0 {
			return fmt.Errorf("no column %q", fields[2])
		}
		asc := !(len(fields) > 3 && fields[3] == "desc")
		plan = execution.NewOrderBy(col, asc, scan)
	}
	return render(plan)
}

func render(plan execution.Operator) error {
	if err := plan.Open(); err != nil {
		return err
	}
	defer plan.Close()

	desc := plan.Desc()
	header := make([]string, desc.NumFields())
	for i := range header {
		header[i] = desc.FieldName(i)
		if header[i] == "" {
			header[i] = fmt.Sprintf("f%d", i)
		}
	}
	w := tablewriter.NewWriter(os.Stdout)
	w.SetHeader(header)

	rows := 0
	for {
		t, err := plan.Next()
		if err != nil {
			return err
		}
		if t == nil {
			break
		}
		row := make([]string, desc.NumFields())
		for i := range row {
			row[i] = t.GetValue(i).String()
		}
		w.Append(row)
		rows++
	}
	w.Render()
	fmt.Printf("%d row(s)\n", rows)
	return nil
}

func parsePredicate(desc *storage.TupleDesc, col, opTok, valTok string) (*execution.Predicate, error) {
	field := desc.IndexOf(col)
	if field < 0 {
		return nil, fmt.Errorf("no column %q", col)
	}
	op, ok := execution.ParseOp(opTok)
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", opTok)
	}
	val, err := parseValue(desc.FieldType(field), valTok)
	if err != nil {
		return nil, err
	}
	return execution.NewPredicate(field, op, val), nil
}

func parseValue(t common.Type, tok string) (storage.Value, error) {
	switch t {
	case common.IntType:
		n, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			return storage.Value{}, fmt.Errorf("bad int %q", tok)
		}
		return storage.NewIntValue(int32(n)), nil
	case common.StringType:
		return storage.NewStringValue(strings.Trim(tok, "'\"")), nil
	}
	return storage.Value{}, fmt.Errorf("unknown type")
}

func parseTuple(desc *storage.TupleDesc, toks []string) (*storage.Tuple, error) {
	if len(toks) != desc.NumFields() {
		return nil, fmt.Errorf("expected %d values, got %d", desc.NumFields(), len(toks))
	}
	t := storage.NewTuple(desc)
	for i, tok := range toks {
		v, err := parseValue(desc.FieldType(i), tok)
		if err != nil {
			return nil, err
		}
		t.SetValue(i, v)
	}
	return t, nil
}

// singleton is a one-tuple operator used to feed literal inserts.
type singleton struct {
	t       *storage.Tuple
	opened  bool
	emitted bool
}

func newSingleton(t *storage.Tuple) *singleton {
	return &singleton{t: t}
}

func (s *singleton) Open() error {
	s.opened = true
	s.emitted = false
	return nil
}

func (s *singleton) HasNext() (bool, error) {
	return !s.emitted, nil
}

func (s *singleton) Next() (*storage.Tuple, error) {
	if s.emitted {
		return nil, nil
	}
	s.emitted = true
	return s.t, nil
}

func (s *singleton) Rewind() error {
	s.emitted = false
	return nil
}

func (s *singleton) Close() error {
	s.opened = false
	return nil
}

func (s *singleton) Desc() *storage.TupleDesc {
	return s.t.Desc()
}

func (s *singleton) Children() []execution.Operator {
	return nil
}

func (s *singleton) SetChildren(children []execution.Operator) {}
