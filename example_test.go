package pdbcache_test

import (
	"context"
	"fmt"

	"github.com/hupe1980/pdbcache"
	"github.com/hupe1980/pdbcache/objectcache"
	"github.com/hupe1980/pdbcache/record"
	"github.com/hupe1980/pdbcache/table"
)

func Example() {
	ctx := context.Background()

	db, err := pdbcache.New(table.NewMemoryTable(), objectcache.NewMemoryStore())
	if err != nil {
		panic(err)
	}
	defer db.Close()

	_ = db.Create(ctx, record.Record{ID: 205, Fields: record.Fields{"name": record.String("Ada")}})
	_ = db.Create(ctx, record.Record{ID: 250, Fields: record.Fields{"name": record.String("Grace")}})

	rec, _ := db.Get(ctx, 205)
	name, _ := rec.Get("name")
	fmt.Println(rec.ID, name.StringValue())

	// served from the same cached block
	_, _ = db.Get(ctx, 250)
	fmt.Println("reloads:", db.Stats().Reloads)

	_, err = db.Get(ctx, 999999)
	fmt.Println(err != nil)

	// Output:
	// 205 Ada
	// reloads: 1
	// true
}
