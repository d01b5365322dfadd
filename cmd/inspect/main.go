// Command inspect dumps the persisted thread and comment records from a
// BadgerDB directory in a readable table. Open the store read-only while the
// server is down, or pass -unsafe to bypass the lock guard on a live copy.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"

	"comment-hub/domain"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "", "Key prefix to scan (thr: or cmt:, empty for both)")
	unsafe := flag.Bool("unsafe", false, "Bypass the badger lock guard")
	flag.Parse()

	options := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR)
	if *unsafe {
		options = options.WithBypassLockGuard(true)
	}

	db, err := badger.Open(options)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Created", "Status", "Author", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(v []byte) error {
				switch {
				case strings.HasPrefix(key, "thr:"):
					var thread domain.Thread
					if err := json.Unmarshal(v, &thread); err != nil {
						fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
						return nil
					}
					detail := thread.Title
					if thread.Locked {
						detail += " [locked]"
					}
					table.Append([]string{
						key, "THREAD",
						thread.CreatedAt.Format("2006-01-02 15:04:05"),
						"", thread.PageKey, detail,
					})
				case strings.HasPrefix(key, "cmt:"):
					var comment domain.Comment
					if err := json.Unmarshal(v, &comment); err != nil {
						fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
						return nil
					}
					body := comment.Body
					if len(body) > 60 {
						body = body[:60] + "..."
					}
					table.Append([]string{
						key, "COMMENT",
						comment.CreatedAt.Format("2006-01-02 15:04:05"),
						comment.Status.String(),
						comment.Author.Name,
						body,
					})
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}
