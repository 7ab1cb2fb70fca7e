// Command inspect dumps raw keys and values from a historydb Pebble
// database. Intended for offline debugging; do not point it at a live DB.
package main

import (
	"flag"
	"fmt"
	"os"

	"historydb/pkg/store"
)

func main() {
	dbPath := flag.String("db", "./.historydb/store", "path to Pebble DB")
	prefix := flag.String("prefix", "", "only show keys with this prefix")
	values := flag.Bool("values", false, "print values alongside keys")
	flag.Parse()

	if err := store.Open(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer store.Close()

	keys, err := store.ListKeys(*prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list keys: %v\n", err)
		os.Exit(1)
	}
	for _, k := range keys {
		if !*values {
			fmt.Println(k)
			continue
		}
		v, err := store.GetKey(k)
		if err != nil {
			fmt.Printf("%s\t<error: %v>\n", k, err)
			continue
		}
		fmt.Printf("%s\t%s\n", k, v)
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", len(keys))
}
