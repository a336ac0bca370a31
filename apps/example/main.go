//go:build wasip1

// Command example is a guest module for libsqlhost. It opens the database
// named by its first argument, records a visit and prints the visit log.
//
//	GOOS=wasip1 GOARCH=wasm go build -o example.wasm ./apps/example
//	libsqlhost -module example.wasm -- /tmp/visits.db
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tomyedwab/libsqlbridge/guest"
	"github.com/tomyedwab/libsqlbridge/term"
)

func main() {
	path := "visits.db"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	client := guest.Default()

	db, err := client.OpenLocal(path)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Release(db)

	conn, err := client.Connect(db)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Release(conn)

	_, err = client.Query(conn, "CREATE TABLE IF NOT EXISTS visits (id INTEGER PRIMARY KEY, at TEXT NOT NULL)", nil)
	if err != nil {
		log.Fatal(err)
	}

	res, err := client.Query(conn, "INSERT INTO visits (at) VALUES (?)", guest.MustParams(time.Now().UTC().Format(time.RFC3339)))
	if err != nil {
		log.Fatal(err)
	}
	if res.LastInsertID != nil {
		fmt.Printf("Recorded visit %d\n", *res.LastInsertID)
	}

	res, err = client.Query(conn, "SELECT id, at FROM visits ORDER BY id", nil)
	if err != nil {
		log.Fatal(err)
	}
	for _, row := range res.Rows {
		fmt.Printf("%s\t%s\n", term.Format(row[0]), term.Format(row[1]))
	}
}
