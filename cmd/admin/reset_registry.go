package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	connStr := flag.String("db", os.Getenv("MPATH_DATABASE_URL"), "PostgreSQL connection string")
	script := flag.String("script", "", "SQL file to run after clearing the registry")
	flag.Parse()

	if *connStr == "" {
		fmt.Fprintln(os.Stderr, "a connection string is required (-db or MPATH_DATABASE_URL)")
		os.Exit(2)
	}

	db, err := sql.Open("postgres", *connStr)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	res, err := db.Exec("DELETE FROM devices")
	if err != nil {
		panic(err)
	}
	n, _ := res.RowsAffected()
	fmt.Printf("Removed %d devices from the registry\n", n)

	if *script == "" {
		return
	}
	content, err := os.ReadFile(*script)
	if err != nil {
		panic(err)
	}
	if _, err := db.Exec(string(content)); err != nil {
		panic(err)
	}
	fmt.Printf("Successfully applied %s\n", *script)
}
