// Command repsctl is an operator CLI over a repstore trail engine: put,
// get, deltify, undeltify, and stat a rep by key, against whichever
// backing store the running config file points at.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/prn-tf/repstore/internal/config"
	"github.com/prn-tf/repstore/internal/pgdb"
	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/rep/pgreps"
	"github.com/prn-tf/repstore/internal/rep/sqlitereps"
	"github.com/prn-tf/repstore/internal/repsvc"
	"github.com/prn-tf/repstore/internal/sqlitedb"
	"github.com/prn-tf/repstore/internal/strstore"
	"github.com/prn-tf/repstore/internal/strstore/pgstrings"
	"github.com/prn-tf/repstore/internal/strstore/sqlitestrings"
	"github.com/prn-tf/repstore/internal/trail"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML/TOML/JSON config file")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: repsctl [-config path] <put|get|stat|deltify|undeltify> [args]")
		os.Exit(2)
	}

	if err := run(*configPath, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "repsctl:", err)
		os.Exit(1)
	}
}

func run(configPath, cmd string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := zerolog.Nop()
	ctx := context.Background()

	var reps rep.Store
	var strs strstore.Store
	var beginner repsvc.Beginner

	if cfg.Engine.LocalMode {
		db, err := sqlitedb.Open(cfg.Engine.LocalPath, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		reps = sqlitereps.New(db)
		strs = sqlitestrings.New()
		beginner = func(ctx context.Context) (trail.Tx, error) { return db.Begin(ctx) }
	} else {
		db, err := pgdb.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxPoolSize, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		reps = pgreps.New(db)
		strs = pgstrings.New()
		beginner = func(ctx context.Context) (trail.Tx, error) { return db.Begin(ctx) }
	}

	svc := repsvc.New(reps, strs, nil, nil, nil, logger, beginner, repsvc.Config{})

	switch cmd {
	case "put":
		return cmdPut(ctx, svc, args)
	case "get":
		return cmdGet(ctx, svc, args)
	case "stat":
		return cmdStat(ctx, svc, args)
	case "deltify":
		return cmdDeltify(ctx, svc, args)
	case "undeltify":
		return cmdUndeltify(ctx, svc, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdPut(ctx context.Context, svc *repsvc.Service, args []string) error {
	var baseKey string
	if len(args) > 0 {
		baseKey = args[0]
	}

	tr, err := svc.Begin(ctx)
	if err != nil {
		return err
	}
	key, err := svc.GetMutableRep(ctx, tr, baseKey, "repsctl")
	if err != nil {
		return err
	}
	ws, err := svc.OpenWriteStream(ctx, tr, key, "repsctl")
	if err != nil {
		return err
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}
	if _, err := ws.Write(ctx, data); err != nil {
		return err
	}
	if err := ws.Close(ctx); err != nil {
		return err
	}
	if err := tr.Commit(ctx); err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}

func cmdGet(ctx context.Context, svc *repsvc.Service, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: repsctl get <key>")
	}
	tr, err := svc.Begin(ctx)
	if err != nil {
		return err
	}
	data, err := svc.ReadAll(ctx, tr, args[0])
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func cmdStat(ctx context.Context, svc *repsvc.Service, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: repsctl stat <key>")
	}
	tr, err := svc.Begin(ctx)
	if err != nil {
		return err
	}
	r, err := svc.Reps().Read(ctx, tr, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("key: %s\n", r.Key)
	fmt.Printf("kind: %s\n", r.Kind)
	fmt.Printf("chunks: %d\n", len(r.Chunks))
	fmt.Printf("mutable: %v\n", r.TxnID != "")
	return nil
}

func cmdDeltify(ctx context.Context, svc *repsvc.Service, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: repsctl deltify <target-key> <source-key>")
	}
	tr, err := svc.Begin(ctx)
	if err != nil {
		return err
	}
	if err := svc.Deltify(ctx, tr, args[0], args[1]); err != nil {
		return err
	}
	return tr.Commit(ctx)
}

func cmdUndeltify(ctx context.Context, svc *repsvc.Service, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: repsctl undeltify <key>")
	}
	tr, err := svc.Begin(ctx)
	if err != nil {
		return err
	}
	if err := svc.Undeltify(ctx, tr, args[0]); err != nil {
		return err
	}
	return tr.Commit(ctx)
}
