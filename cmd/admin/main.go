package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/tendant/simple-site/pkg/simplesite"
	"github.com/tendant/simple-site/pkg/simplesite/config"
	"github.com/tendant/simple-site/pkg/simplesite/scan"
)

const usage = `Simple Site Admin CLI

Operator tasks that run directly against the configured database.

USAGE:
  admin <command> [options]

COMMANDS:
  seed-types        Install the starter default content block types
  create-user       Create a user and their personal organisation
  list-orgs         List the organisations a user belongs to
  list-products     List an organisation's products
  set-variable      Store a credential value for an organisation
  remove-provider   Delete all credential values of a provider for an organisation
  check-content     Report content blocks that drifted from their type's fields

ENVIRONMENT VARIABLES:
  DATABASE_URL      "memory" or a postgres:// connection string (default: memory)
  DB_SCHEMA         PostgreSQL schema name (default: simplesite)
  STORAGE_URL       memory://, file:///path or s3://bucket

  Configuration can be loaded from a .env file in the current directory.
  Command line environment variables override .env file values.

EXAMPLES:
  admin seed-types
  admin create-user --name="Alice" --email=alice@example.com --password=s3cret-pass
  admin list-orgs --user-id=550e8400-e29b-41d4-a716-446655440000
  admin list-products --org-id=550e8400-e29b-41d4-a716-446655440000 --active
  admin set-variable --org-id=<uuid> --provider=stripe --key=test_secret_key --value=sk_test_...
  admin remove-provider --org-id=<uuid> --provider=stripe
  admin check-content --org-id=<uuid> --user-id=<uuid> [--type-id=<uuid>]

OPTIONS:
  --json            Output as JSON
`

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "help" || command == "--help" || command == "-h" {
		fmt.Print(usage + "\n")
		os.Exit(0)
	}

	cfg, err := config.Load(config.WithEnv(), config.WithEventLogging(false))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	components, err := cfg.Build(ctx)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer components.Close()
	svc := components.Service

	flags, useJSON := parseFlags(os.Args[2:])

	switch command {
	case "seed-types":
		handleSeedTypes(ctx, svc, useJSON)
	case "create-user":
		handleCreateUser(ctx, svc, flags, useJSON)
	case "list-orgs":
		handleListOrgs(ctx, svc, flags, useJSON)
	case "list-products":
		handleListProducts(ctx, svc, flags, useJSON)
	case "set-variable":
		handleSetVariable(ctx, svc, flags)
	case "remove-provider":
		handleRemoveProvider(ctx, svc, flags)
	case "check-content":
		handleCheckContent(ctx, svc, flags, useJSON)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}
}

func parseFlags(args []string) (map[string]string, bool) {
	flags := make(map[string]string)
	useJSON := false
	for _, arg := range args {
		if arg == "--json" {
			useJSON = true
			continue
		}
		if key, value := parseFlag(arg); key != "" {
			flags[key] = value
		}
	}
	return flags, useJSON
}

func parseFlag(arg string) (string, string) {
	if !strings.HasPrefix(arg, "--") {
		return "", ""
	}
	key, value, found := strings.Cut(arg[2:], "=")
	if !found {
		return key, "true"
	}
	return key, value
}

func requireFlag(flags map[string]string, name string) string {
	v := flags[name]
	if v == "" {
		log.Fatalf("--%s is required", name)
	}
	return v
}

func requireUUID(flags map[string]string, name string) uuid.UUID {
	id, err := uuid.Parse(requireFlag(flags, name))
	if err != nil {
		log.Fatalf("--%s must be a UUID: %v", name, err)
	}
	return id
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func handleSeedTypes(ctx context.Context, svc simplesite.Service, useJSON bool) {
	created, err := simplesite.SeedStarterContentBlockTypes(ctx, svc)
	if err != nil {
		log.Fatalf("Failed to seed content block types: %v", err)
	}
	if useJSON {
		printJSON(created)
		return
	}
	if len(created) == 0 {
		fmt.Println("Starter content block types already installed")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tSLUG\tFIELDS\n")
	for _, t := range created {
		fmt.Fprintf(w, "%s\t%s\t%d\n", t.ID, t.Slug, len(t.Fields))
	}
	w.Flush()
}

func handleCreateUser(ctx context.Context, svc simplesite.Service, flags map[string]string, useJSON bool) {
	user, org, err := svc.RegisterUser(ctx, simplesite.RegisterUserRequest{
		Name:     requireFlag(flags, "name"),
		Email:    requireFlag(flags, "email"),
		Password: requireFlag(flags, "password"),
	})
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}
	if useJSON {
		printJSON(map[string]any{"user": user, "organisation": org})
		return
	}
	fmt.Printf("User:         %s (%s)\n", user.ID, user.Email)
	fmt.Printf("Organisation: %s (%s)\n", org.ID, org.Slug)
}

func handleListOrgs(ctx context.Context, svc simplesite.Service, flags map[string]string, useJSON bool) {
	orgs, err := svc.ListOrganisationsForUser(ctx, requireUUID(flags, "user-id"))
	if err != nil {
		log.Fatalf("Failed to list organisations: %v", err)
	}
	if useJSON {
		printJSON(orgs)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tSLUG\tNAME\tPERSONAL\tCREATED\n")
	for _, o := range orgs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", o.ID, o.Slug, truncate(o.Name, 30), o.Personal, o.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
	fmt.Printf("\nTotal: %d\n", len(orgs))
}

func handleListProducts(ctx context.Context, svc simplesite.Service, flags map[string]string, useJSON bool) {
	products, err := svc.ListProducts(ctx, requireUUID(flags, "org-id"), flags["active"] == "true")
	if err != nil {
		log.Fatalf("Failed to list products: %v", err)
	}
	if useJSON {
		printJSON(products)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tPRICE\tACTIVE\n")
	for _, p := range products {
		fmt.Fprintf(w, "%s\t%s\t%d.%02d %s\t%t\n", p.ID, truncate(p.Name, 30), p.PriceCents/100, p.PriceCents%100, strings.ToUpper(p.Currency), p.Active)
	}
	w.Flush()
	fmt.Printf("\nTotal: %d\n", len(products))
}

func handleSetVariable(ctx context.Context, svc simplesite.Service, flags map[string]string) {
	owner := simplesite.OrganisationOwner(requireUUID(flags, "org-id"))
	provider := requireFlag(flags, "provider")
	key := requireFlag(flags, "key")
	value := requireFlag(flags, "value")
	if err := svc.SetVariable(ctx, owner, provider, key, value); err != nil {
		log.Fatalf("Failed to set variable: %v", err)
	}
	fmt.Printf("Stored %s/%s = %s\n", provider, key, simplesite.MaskSecret(value))
}

func handleRemoveProvider(ctx context.Context, svc simplesite.Service, flags map[string]string) {
	owner := simplesite.OrganisationOwner(requireUUID(flags, "org-id"))
	provider := requireFlag(flags, "provider")
	n, err := svc.RemoveProvider(ctx, owner, provider)
	if err != nil {
		log.Fatalf("Failed to remove provider: %v", err)
	}
	fmt.Printf("Removed %d value(s) for %s\n", n, provider)
}

func handleCheckContent(ctx context.Context, svc simplesite.Service, flags map[string]string, useJSON bool) {
	scope, err := svc.ResolveScope(ctx, requireUUID(flags, "org-id"), requireUUID(flags, "user-id"))
	if err != nil {
		log.Fatalf("Failed to resolve organisation: %v", err)
	}
	opts := scan.ScanOptions{}
	if flags["type-id"] != "" {
		typeID := requireUUID(flags, "type-id")
		opts.TypeID = &typeID
	}
	collector := scan.NewDriftCollector(svc, scope)
	opts.Processor = collector

	result, err := scan.New(svc).Scan(ctx, scope, opts)
	if err != nil {
		log.Fatalf("Failed to scan content blocks: %v", err)
	}
	drifts := collector.Drifts()
	if useJSON {
		printJSON(map[string]any{"result": result, "drifts": drifts})
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "BLOCK\tTYPE\tMISSING\tUNKNOWN\tINVALID\n")
	for _, d := range drifts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", d.BlockID, d.TypeID,
			truncate(strings.Join(d.Report.Missing, ","), 30),
			truncate(strings.Join(d.Report.Unknown, ","), 30),
			len(d.Report.Invalid))
	}
	w.Flush()
	fmt.Printf("\nScanned: %d  Drifted: %d  Failed: %d\n", result.TotalFound, len(drifts), result.TotalFailed)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
