package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"

	"github.com/hupe1980/pdbcache"
	"github.com/hupe1980/pdbcache/record"
	"github.com/hupe1980/pdbcache/snapshot"
)

type command func(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int

var commands = map[string]command{
	"get":        cmdGet,
	"put":        cmdPut,
	"delete":     cmdDelete,
	"invalidate": cmdInvalidate,
	"warm":       cmdWarm,
	"info":       cmdInfo,
	"export":     cmdExport,
	"import":     cmdImport,
	"snapshots":  cmdSnapshots,
	"serve":      cmdServe,
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	if errors.Is(err, pdbcache.ErrNotFound) || errors.Is(err, snapshot.ErrNotFound) {
		return exitNotFound
	}
	return exitFailure
}

func usageErr(stderr io.Writer, format string, args ...any) int {
	fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
	return exitUsage
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, s := range args {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", s)
		}
		ids[i] = id
	}
	return ids, nil
}

// parseValue infers the field type of a command line value.
func parseValue(s string) record.Value {
	if s == "null" {
		return record.Null()
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return record.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return record.Float(f)
	}
	if s == "true" || s == "false" {
		return record.Bool(s == "true")
	}
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		arr := make([]record.Value, len(parts))
		for i, p := range parts {
			arr[i] = parseValue(p)
		}
		return record.Array(arr)
	}
	return record.String(s)
}

func parseFields(args []string) (record.Fields, error) {
	f := make(record.Fields, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q, want name=value", arg)
		}
		f[name] = parseValue(value)
	}
	return f, nil
}

type recordJSON struct {
	ID     int64          `json:"id"`
	Fields map[string]any `json:"fields"`
}

func writeRecord(w io.Writer, rec record.Record) error {
	data, err := json.Marshal(recordJSON{ID: rec.ID, Fields: rec.Fields.ToMap()})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func cmdGet(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return usageErr(stderr, "get needs at least one id")
	}
	ids, err := parseIDs(args)
	if err != nil {
		return usageErr(stderr, "%v", err)
	}

	if len(ids) == 1 {
		rec, err := a.db.Get(ctx, ids[0])
		if err != nil {
			return fail(stderr, err)
		}
		if err := writeRecord(stdout, rec); err != nil {
			return fail(stderr, err)
		}
		return exitOK
	}

	found, err := a.db.GetMany(ctx, ids)
	if err != nil {
		return fail(stderr, err)
	}
	code := exitOK
	for _, id := range ids {
		rec, ok := found[id]
		if !ok {
			fmt.Fprintf(stderr, "id %d: not found\n", id)
			code = exitNotFound
			continue
		}
		if err := writeRecord(stdout, rec); err != nil {
			return fail(stderr, err)
		}
	}
	return code
}

func cmdPut(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return usageErr(stderr, "put needs an id")
	}
	ids, err := parseIDs(args[:1])
	if err != nil {
		return usageErr(stderr, "%v", err)
	}
	fields, err := parseFields(args[1:])
	if err != nil {
		return usageErr(stderr, "%v", err)
	}

	if err := a.db.Put(ctx, record.Record{ID: ids[0], Fields: fields}); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "put %d (%d fields)\n", ids[0], len(fields))
	return exitOK
}

func cmdDelete(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		return usageErr(stderr, "delete needs exactly one id")
	}
	ids, err := parseIDs(args)
	if err != nil {
		return usageErr(stderr, "%v", err)
	}
	if err := a.db.Delete(ctx, ids[0]); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "deleted %d\n", ids[0])
	return exitOK
}

func cmdInvalidate(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 && len(args) != 2 {
		return usageErr(stderr, "invalidate needs <lo> [hi]")
	}
	ids, err := parseIDs(args)
	if err != nil {
		return usageErr(stderr, "%v", err)
	}

	if len(ids) == 1 {
		err = a.db.Invalidate(ctx, ids[0])
	} else {
		err = a.db.InvalidateRange(ctx, ids[0], ids[1])
	}
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "invalidated %s\n", strings.Join(args, "-"))
	return exitOK
}

func cmdWarm(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		return usageErr(stderr, "warm needs <lo> <hi>")
	}
	ids, err := parseIDs(args)
	if err != nil {
		return usageErr(stderr, "%v", err)
	}

	start := time.Now()
	res, err := a.db.Warm(ctx, ids[0], ids[1])
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "warmed %s blocks (%s records) in %s\n",
		humanize.Comma(int64(res.Blocks)), humanize.Comma(int64(res.Records)),
		time.Since(start).Round(time.Millisecond))
	return exitOK
}

func cmdInfo(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	var records int64
	if err := a.db.Table().Scan(ctx, func(record.Record) error {
		records++
		return nil
	}); err != nil {
		return fail(stderr, err)
	}

	fmt.Fprintf(stdout, "data path:     %s\n", a.cfg.DataPath)
	fmt.Fprintf(stdout, "table size:    %s\n", humanize.Bytes(a.tbl.Size()))
	fmt.Fprintf(stdout, "records:       %s\n", humanize.Comma(records))
	fmt.Fprintf(stdout, "block size:    %d\n", a.cfg.BlockSize)
	fmt.Fprintf(stdout, "cache backend: %s\n", a.cfg.Cache.Backend)
	if a.cfg.Cache.Backend == "memory" {
		fmt.Fprintf(stdout, "cache limit:   %s\n", humanize.IBytes(uint64(a.rc.MemoryLimit())))
	}
	fmt.Fprintf(stdout, "reload slots:  %d\n", a.rc.MaxReloads())
	return exitOK
}

func cmdExport(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	blobs, err := a.blobStore(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	opts, err := a.snapshotOptions()
	if err != nil {
		return usageErr(stderr, "%v", err)
	}

	start := time.Now()
	m, err := a.db.Export(ctx, blobs, opts...)
	if err != nil {
		return fail(stderr, err)
	}

	var size int
	for _, b := range m.Blocks {
		size += b.Bytes
	}
	fmt.Fprintf(stdout, "snapshot %s: %s records in %d blocks (%s, %s) in %s\n",
		m.ID, humanize.Comma(int64(m.Records)), len(m.Blocks),
		humanize.Bytes(uint64(size)), m.Compression,
		time.Since(start).Round(time.Millisecond))
	return exitOK
}

func cmdImport(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		return usageErr(stderr, "import needs a snapshot id or \"latest\"")
	}
	blobs, err := a.blobStore(ctx)
	if err != nil {
		return fail(stderr, err)
	}

	id := args[0]
	if id == "latest" {
		if id, err = snapshot.Latest(ctx, blobs); err != nil {
			return fail(stderr, err)
		}
	}

	m, err := a.db.Import(ctx, blobs, id)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "imported %s: %s records from %s\n",
		m.ID, humanize.Comma(int64(m.Records)), humanize.Time(m.CreatedAt))
	return exitOK
}

func cmdSnapshots(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	blobs, err := a.blobStore(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	ids, err := snapshot.List(ctx, blobs)
	if err != nil {
		return fail(stderr, err)
	}

	for _, id := range ids {
		m, err := snapshot.ReadManifest(ctx, blobs, id)
		if err != nil {
			fmt.Fprintf(stdout, "%s  (unreadable: %v)\n", id, err)
			continue
		}
		fmt.Fprintf(stdout, "%s  %12s records  %s\n", id, humanize.Comma(int64(m.Records)), humanize.Time(m.CreatedAt))
	}
	return exitOK
}
