package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// Main: deletes grade records (and their items) older than -days, for one
// user or everyone. -show-fks lists the foreign keys the delete relies on.
func main() {
	days := flag.Int("days", 365, "delete grade records older than this many days")
	username := flag.String("user", "", "only purge this user's records")
	dryRun := flag.Bool("dry-run", false, "count matching records without deleting")
	showFKs := flag.Bool("show-fks", false, "print foreign key constraints and exit")
	flag.Parse()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if *showFKs {
		if err := printForeignKeys(db); err != nil {
			log.Fatal(err)
		}
		return
	}
	if *days < 0 {
		log.Fatalf("-days must not be negative")
	}

	var userID sql.NullInt64
	if *username != "" {
		if err := db.QueryRow(`SELECT id FROM users WHERE username=$1 LIMIT 1`, *username).Scan(&userID); err != nil {
			log.Fatalf("find user %q: %v", *username, err)
		}
	}
	f := newFilter(time.Now(), *days, userID)

	var n int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM grade_records WHERE `+f.where, f.args...).Scan(&n); err != nil {
		log.Fatalf("count grade records: %v", err)
	}
	if *dryRun {
		fmt.Printf("dry-run: %d grade records older than %s would be deleted\n", n, f.cutoff().Format(time.RFC3339))
		return
	}

	tx, err := db.Begin()
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	res1, err := tx.Exec(`DELETE FROM grade_items WHERE grade_record_id IN (SELECT id FROM grade_records WHERE `+f.where+`)`, f.args...)
	if err != nil {
		_ = tx.Rollback()
		log.Fatalf("delete grade items: %v", err)
	}
	items, _ := res1.RowsAffected()
	res2, err := tx.Exec(`DELETE FROM grade_records WHERE `+f.where, f.args...)
	if err != nil {
		_ = tx.Rollback()
		log.Fatalf("delete grade records: %v", err)
	}
	records, _ := res2.RowsAffected()
	if err := tx.Commit(); err != nil {
		log.Fatalf("commit: %v", err)
	}
	fmt.Printf("purge done: grade records deleted=%d, items deleted=%d\n", records, items)
}

// filter selects grade_records rows by age and optionally owner.
type filter struct {
	where string
	args  []any
}

func newFilter(now time.Time, days int, userID sql.NullInt64) filter {
	cutoff := now.UTC().AddDate(0, 0, -days)
	f := filter{where: "created_at < $1", args: []any{cutoff}}
	if userID.Valid {
		f.where += " AND user_id = $2"
		f.args = append(f.args, userID.Int64)
	}
	return f
}

func (f filter) cutoff() time.Time { return f.args[0].(time.Time) }

func printForeignKeys(db *sql.DB) error {
	rows, err := db.Query(`
		SELECT
		  con.conname AS constraint_name,
		  rel.relname AS table_name,
		  array_to_string(array_agg(att.attname ORDER BY u.ord), ',') AS src_columns,
		  confrel.relname AS referenced_table,
		  pg_get_constraintdef(con.oid) AS definition
		FROM pg_constraint con
		JOIN pg_class rel ON rel.oid = con.conrelid
		JOIN pg_class confrel ON confrel.oid = con.confrelid
		JOIN unnest(con.conkey) WITH ORDINALITY AS u(attnum, ord) ON true
		JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = u.attnum
		WHERE con.contype = 'f'
		GROUP BY con.oid, con.conname, rel.relname, confrel.relname
		ORDER BY rel.relname, constraint_name;
	`)
	if err != nil {
		return fmt.Errorf("query constraints: %w", err)
	}
	defer rows.Close()

	fmt.Println("Foreign keys:")
	for rows.Next() {
		var cname, table, reftable, def string
		var srcCols sql.NullString
		if err := rows.Scan(&cname, &table, &srcCols, &reftable, &def); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		fmt.Printf("- %s: %s(%s) -> %s\n    def: %s\n", cname, table, srcCols.String, reftable, def)
	}
	return rows.Err()
}
