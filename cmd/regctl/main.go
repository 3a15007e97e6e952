// Command regctl prints the attendee table of the configured store.
//
//	regctl list [-all]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	coreconfig "github.com/m3rciful/regbot/core/config"
	"github.com/m3rciful/regbot/internal/attendee"
	"github.com/m3rciful/regbot/internal/conversation"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 || os.Args[1] != "list" {
		fmt.Fprintln(os.Stderr, "usage: regctl list [-all] [-config path]")
		os.Exit(2)
	}

	fs := flag.NewFlagSet("list", flag.ExitOnError)
	all := fs.Bool("all", false, "include cancelled attendees")
	cfgPath := fs.String("config", envOr("CONFIG_PATH", "config.yaml"), "path to config file")
	_ = fs.Parse(os.Args[2:])

	cfg, err := coreconfig.LoadStorage(*cfgPath)
	if err != nil {
		log.Fatal("config: ", err)
	}

	ctx := context.Background()
	store, err := attendee.Open(ctx, cfg)
	if err != nil {
		log.Fatal("open store: ", err)
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		log.Fatal("init store: ", err)
	}

	records, err := list(ctx, store, *all)
	if err != nil {
		log.Fatal(err)
	}
	render(os.Stdout, records)
}

func list(ctx context.Context, store attendee.Store, all bool) ([]attendee.Record, error) {
	if all {
		return store.All(ctx)
	}
	seq, err := store.Active(ctx)
	if err != nil {
		return nil, err
	}
	var out []attendee.Record
	for r := range seq {
		out = append(out, r)
	}
	return out, nil
}

func render(w io.Writer, records []attendee.Record) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(attendee.Header)
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

	for _, r := range records {
		name := r.FullName
		if name == "" {
			name = conversation.PlaceholderHandle
		}
		table.Append([]string{
			r.Handle,
			r.RegisteredAt,
			fmt.Sprint(r.Identity),
			name,
			string(r.Status),
		})
	}
	table.Render()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
