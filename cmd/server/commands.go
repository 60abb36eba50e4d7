package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"tangled.org/booru.social/booru/internal/config"
	"tangled.org/booru.social/booru/internal/database/boltstore"
	"tangled.org/booru.social/booru/internal/moderation"
)

var sweepCmd = &cli.Command{
	Name:  "sweep",
	Usage: "run one reconciliation sweep and exit",
	Action: func(cctx *cli.Context) error {
		svc, err := servicesFromCLI(cctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		summary, err := svc.engine.Sweep(cctx.Context)
		if err != nil {
			return err
		}
		if err := printJSON(os.Stdout, summary); err != nil {
			return err
		}
		if summary.Errored > 0 {
			return fmt.Errorf("%d sessions could not be reconciled: %w", summary.Errored, summary.Err())
		}
		return nil
	},
}

var auditCmd = &cli.Command{
	Name:  "audit",
	Usage: "audit log maintenance",
	Subcommands: []*cli.Command{
		{
			Name:  "export",
			Usage: "write the audit log as zstd-compressed JSON lines",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "out",
					Usage:    "output file (.jsonl.zst)",
					Required: true,
				},
				&cli.TimestampFlag{
					Name:   "since",
					Usage:  "only export actions at or after this time",
					Layout: time.RFC3339,
				},
				&cli.IntFlag{
					Name:  "limit",
					Usage: "maximum number of actions (0 for all)",
				},
			},
			Action: func(cctx *cli.Context) error {
				svc, err := servicesFromCLI(cctx)
				if err != nil {
					return err
				}
				defer svc.Close()

				filter := moderation.ActionFilter{Limit: cctx.Int("limit")}
				if since := cctx.Timestamp("since"); since != nil {
					filter.Since = *since
				}
				actions, err := svc.store.ListActions(cctx.Context, filter)
				if err != nil {
					return err
				}

				path := cctx.String("out")
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := writeActionsJSONL(f, actions); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				log.Info().Int("actions", len(actions)).Str("file", path).Msg("Audit log exported")
				return nil
			},
		},
	},
}

var contentCmd = &cli.Command{
	Name:  "content",
	Usage: "manage the local content registry",
	Subcommands: []*cli.Command{
		{
			Name:      "import",
			Usage:     "load content items from a JSON lines file",
			ArgsUsage: "<file>",
			Action: func(cctx *cli.Context) error {
				if cctx.Args().Len() != 1 {
					return errors.New("expected exactly one seed file")
				}
				svc, err := localContentFromCLI(cctx)
				if err != nil {
					return err
				}
				defer svc.Close()

				path := cctx.Args().First()
				items, err := loadContentSeed(path)
				if err != nil {
					return err
				}
				store := svc.content.ContentStore()
				for _, item := range items {
					if err := store.Put(cctx.Context, item); err != nil {
						return fmt.Errorf("import content %d: %w", item.ID, err)
					}
				}
				log.Info().Int("count", len(items)).Str("file", path).Msg("Imported content items")
				return nil
			},
		},
		{
			Name:      "history",
			Usage:     "print the visibility history of a content item",
			ArgsUsage: "<content-id>",
			Action: func(cctx *cli.Context) error {
				id, err := contentIDArg(cctx)
				if err != nil {
					return err
				}
				svc, err := localContentFromCLI(cctx)
				if err != nil {
					return err
				}
				defer svc.Close()

				history, err := svc.content.ContentStore().History(cctx.Context, id)
				if err != nil {
					return err
				}
				return printJSON(os.Stdout, history)
			},
		},
		{
			Name:      "purge",
			Usage:     "delete a content item and all moderation data attached to it",
			ArgsUsage: "<content-id>",
			Action: func(cctx *cli.Context) error {
				id, err := contentIDArg(cctx)
				if err != nil {
					return err
				}
				svc, err := servicesFromCLI(cctx)
				if err != nil {
					return err
				}
				defer svc.Close()

				details, err := svc.engine.PurgeContent(cctx.Context, id)
				if err != nil {
					return err
				}
				if svc.content != nil {
					if err := svc.content.ContentStore().Delete(cctx.Context, id); err != nil {
						return err
					}
				}
				return printJSON(os.Stdout, details)
			},
		},
	},
}

var rolesCmd = &cli.Command{
	Name:  "roles",
	Usage: "inspect the roles file",
	Subcommands: []*cli.Command{
		{
			Name:  "check",
			Usage: "validate the roles file and list its members",
			Action: func(cctx *cli.Context) error {
				path := cctx.String("roles-file")
				roles, err := moderation.NewRoleService(path)
				if err != nil {
					return err
				}
				members := roles.ListMembers()
				log.Info().Str("file", path).Int("members", len(members)).Msg("Roles file is valid")
				return printJSON(os.Stdout, members)
			},
		},
	},
}

func servicesFromCLI(cctx *cli.Context) (*services, error) {
	cfg, err := config.FromCLI(cctx)
	if err != nil {
		return nil, err
	}
	return openServices(cctx.Context, cfg)
}

func localContentFromCLI(cctx *cli.Context) (*services, error) {
	if cctx.String("content-url") != "" {
		return nil, errors.New("content commands only work on the local registry, unset --content-url")
	}
	return servicesFromCLI(cctx)
}

func contentIDArg(cctx *cli.Context) (int64, error) {
	if cctx.Args().Len() != 1 {
		return 0, errors.New("expected exactly one content id")
	}
	var id int64
	if _, err := fmt.Sscan(cctx.Args().First(), &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid content id %q", cctx.Args().First())
	}
	return id, nil
}

// loadContentSeed reads content items from a file with one JSON object per
// line. Blank lines and lines starting with # are ignored.
func loadContentSeed(path string) ([]boltstore.ContentItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []boltstore.ContentItem
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var item boltstore.ContentItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if item.ID <= 0 {
			return nil, fmt.Errorf("%s:%d: content id must be positive", path, lineNo)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// writeActionsJSONL writes one JSON object per action through a zstd encoder.
func writeActionsJSONL(w io.Writer, actions []moderation.AdminAction) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(zw)
	for i := range actions {
		if err := enc.Encode(&actions[i]); err != nil {
			zw.Close()
			return fmt.Errorf("encode action %s: %w", actions[i].ID, err)
		}
	}
	return zw.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
