// Command empictl is the operator CLI for the EMPI engine: schema
// management plus direct post/get access to every HTTP endpoint, for
// scripting and local testing without a running server process.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/rawblock/empi-engine/internal/audit"
	"github.com/rawblock/empi-engine/internal/db"
	"github.com/rawblock/empi-engine/internal/idgen"
	"github.com/rawblock/empi-engine/internal/processor"
	"github.com/rawblock/empi-engine/pkg/models"
)

type cli struct {
	DatabaseURL string `help:"Postgres connection string." env:"DATABASE_URL" required:""`

	CreateDB struct{} `cmd:"" name:"create_db" help:"Drop and recreate the schema."`

	Post struct {
		Endpoint string   `arg:"" help:"One of: demographic, activate_demographic, deactivate_demographic, delete_demographic, match_affirm, match_deny, delete_action, update_status."`
		User     string   `help:"Acting user." required:""`
		Field    []string `help:"key=value fields for the request body, repeatable." short:"f"`
	} `cmd:"" help:"Run a POST operation synchronously."`

	Get struct {
		Endpoint string   `arg:"" help:"Table/entity name, as in the HTTP GET surface."`
		Filter   []string `help:"key=value equality filter, repeatable." short:"f"`
	} `cmd:"" help:"Run a query_records-style GET."`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("empictl"),
		kong.Description("operator CLI for the EMPI identity resolution engine"),
	)

	ctx := context.Background()
	store, err := db.Connect(ctx, c.DatabaseURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer store.Close()

	switch kctx.Command() {
	case "create_db":
		if err := store.DropSchema(ctx); err != nil {
			log.Fatalf("drop schema: %v", err)
		}
		if err := store.InitSchema(ctx); err != nil {
			log.Fatalf("init schema: %v", err)
		}
		fmt.Println("schema recreated")

	case "post <endpoint>":
		runPost(ctx, store, c.Post.Endpoint, c.Post.User, c.Post.Field)

	case "get <endpoint>":
		runGet(ctx, store, c.Get.Endpoint, c.Get.Filter)

	default:
		kctx.FatalIfErrorf(fmt.Errorf("unhandled command %q", kctx.Command()))
	}
}

func parseFields(pairs []string) map[string]interface{} {
	out := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, found := cut(pair, "=")
		if !found {
			fmt.Fprintf(os.Stderr, "ignoring malformed field %q (expected key=value)\n", pair)
			continue
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		out[key] = parsed
	}
	return out
}

func cut(s, sep string) (before, after string, found bool) {
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			return s[:i], s[i+len(sep):], true
		}
	}
	return s, "", false
}

func runPost(ctx context.Context, store *db.Store, endpoint, user string, fields []string) {
	minter := idgen.New(store, "empictl")
	proc := processor.New(store, noopNotifier{})
	body := parseFields(fields)

	auditor, err := audit.New(ctx, store, minter, user, endpoint)
	if err != nil {
		log.Fatalf("open batch: %v", err)
	}
	var runErr error
	defer auditor.Close(&runErr)

	switch endpoint {
	case "demographic":
		raw, _ := body["demographics"].([]interface{})
		demos := make([]map[string]interface{}, 0, len(raw))
		for _, r := range raw {
			if m, ok := r.(map[string]interface{}); ok {
				demos = append(demos, m)
			}
		}
		metrics, err := proc.Demographic(ctx, auditor, processor.IngestPayload{Demographics: demos})
		runErr = err
		printJSON(metrics)
	case "activate_demographic":
		recordID := asInt64(body["record_id"])
		runErr = proc.ActivateDemographic(ctx, auditor, recordID)
	case "deactivate_demographic":
		recordID := asInt64(body["record_id"])
		runErr = proc.DeactivateDemographic(ctx, auditor, recordID)
	case "delete_demographic":
		recordID := asInt64(body["record_id"])
		runErr = proc.DeleteDemographic(ctx, auditor, recordID)
	case "match_affirm":
		runErr = proc.AffirmMatching(ctx, auditor, asInt64(body["record_id_low"]), asInt64(body["record_id_high"]))
	case "match_deny":
		runErr = proc.DenyMatching(ctx, auditor, asInt64(body["record_id_low"]), asInt64(body["record_id_high"]))
	case "delete_action":
		action, _ := body["action"].(string)
		runErr = proc.DeleteAction(ctx, auditor, asInt64(body["batch_id"]), asInt64(body["proc_id"]), action)
	case "update_status":
		status, _ := body["status"].(string)
		runErr = proc.UpdateStatus(ctx, asInt64(body["batch_id"]), asInt64(body["proc_id"]), status)
	default:
		runErr = fmt.Errorf("unknown post endpoint %q", endpoint)
	}

	if runErr != nil {
		log.Fatalf("%s: %v", endpoint, runErr)
	}
	fmt.Printf("batch_key=%d\n", auditor.BatchID)
}

func runGet(ctx context.Context, store *db.Store, endpointName string, filterPairs []string) {
	proc := processor.New(store, noopNotifier{})

	filter := parseFields(filterPairs)
	records, err := proc.QueryRecords(ctx, models.Endpoint(endpointName), filter)
	if err != nil {
		log.Fatalf("get %s: %v", endpointName, err)
	}
	printJSON(records)
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshal output: %v", err)
	}
	fmt.Println(string(data))
}

// noopNotifier discards bulletin events — the CLI has no live subscriber to
// push them to.
type noopNotifier struct{}

func (noopNotifier) PublishBulletin(batchID, procID, recordID, enterpriseID int64, ts time.Time) {}
