package main

import (
	"database/sql"
	"errors"
	"log"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"auto_responder/migrations"
)

// Opts with all CLI options
type Opts struct {
	DB string `short:"d" long:"db" env:"SESSION_DB" default:"my_account.session" description:"path to the session database"`

	Args struct {
		Command string `positional-arg-name:"command" description:"up, up-one, down, status, version or reset"`
	} `positional-args:"yes" required:"yes"`
}

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", opts.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Setup(); err != nil {
		log.Fatalf("setup migrations: %v", err)
	}

	cmd := opts.Args.Command
	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	case "reset":
		err = goose.Reset(db, ".")
	default:
		parser.WriteHelp(os.Stderr)
		log.Fatalf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}
