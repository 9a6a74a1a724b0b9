// gns-cli is a small operator tool for zone key management and ad hoc
// publish/lookup against the Mainline DHT block store: "init" generates a
// zone key, "publish" signs and stores a record under a label, "lookup"
// resolves a label back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/adapters"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/crypto"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnsrecord"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnszone"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Println("gns-cli " + version)
	case "init":
		initCmd()
	case "publish":
		publishCmd()
	case "lookup":
		lookupCmd()
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`gns-cli - GNS zone key and block management

SUBCOMMANDS:
  init --out <path> [--encrypt]            Generate a new zone key
  publish --zone-key <path> --label <l>   Sign and publish a record
          --type <n> --data <value>
          [--ttl 1h] [--dht-port 0] [--encrypted]
  lookup --zone <base32-id> --label <l>   Resolve a label under a zone
         [--dht-port 0] [--timeout 10s]

EXAMPLES:
  gns-cli init --out zone.key
  gns-cli publish --zone-key zone.key --label www --type 1 --data 203.0.113.5
  gns-cli lookup --zone <peer-id> --label www`)
}

func initCmd() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	out := fs.String("out", "zone.key", "Output path for the generated zone key")
	encrypt := fs.Bool("encrypt", false, "Encrypt the zone key file with a passphrase")
	fs.Parse(os.Args[2:])

	zk, err := crypto.GenerateZoneKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate zone key: %v\n", err)
		os.Exit(1)
	}

	if *encrypt {
		password, err := crypto.ReadPasswordTwice("Enter encryption password: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "read password: %v\n", err)
			os.Exit(1)
		}
		if err := crypto.SaveZoneKeyEncrypted(*out, zk, password); err != nil {
			fmt.Fprintf(os.Stderr, "save zone key: %v\n", err)
			os.Exit(1)
		}
	} else if err := crypto.SaveZoneKey(*out, zk); err != nil {
		fmt.Fprintf(os.Stderr, "save zone key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Zone key written to " + *out)
	fmt.Println("Zone id: " + crypto.ZoneIDBase32(zk.Public))
}

func publishCmd() {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	zoneKeyPath := fs.String("zone-key", "", "Path to zone key (required)")
	label := fs.String("label", "", "Record label (required)")
	recordType := fs.Uint("type", 0, "Record type (required, nonzero)")
	data := fs.String("data", "", "Record data (required)")
	ttl := fs.Duration("ttl", time.Hour, "Record expiration from now")
	dhtPort := fs.Int("dht-port", 0, "UDP port for the DHT client (0 = random)")
	encrypted := fs.Bool("encrypted", false, "Zone key file is passphrase-encrypted")
	fs.Parse(os.Args[2:])

	if *zoneKeyPath == "" || *label == "" || *recordType == 0 || *data == "" {
		fmt.Fprintln(os.Stderr, "Usage: gns-cli publish --zone-key <path> --label <l> --type <n> --data <value>")
		os.Exit(1)
	}

	zk, err := loadZoneKey(*zoneKeyPath, *encrypted)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load zone key: %v\n", err)
		os.Exit(1)
	}

	dht, err := adapters.NewDHTClient(*dhtPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dht: %v\n", err)
		os.Exit(1)
	}
	defer dht.Close()

	now := time.Now()
	rds := []gnsrecord.Record{{
		Type:       uint32(*recordType),
		Expiration: now.Add(*ttl).UnixMicro(),
		Data:       []byte(*data),
	}}

	pub := &gnszone.Publisher{Store: dht}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := pub.Publish(ctx, zk, *label, rds, now); err != nil {
		fmt.Fprintf(os.Stderr, "publish: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Published %q under zone %s (ttl %v)\n", *label, crypto.ZoneIDBase32(zk.Public), *ttl)
}

func lookupCmd() {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	zoneID := fs.String("zone", "", "Zone id, base32 (required)")
	label := fs.String("label", "", "Record label (required)")
	dhtPort := fs.Int("dht-port", 0, "UDP port for the DHT client (0 = random)")
	timeout := fs.Duration("timeout", 10*time.Second, "Lookup timeout")
	fs.Parse(os.Args[2:])

	if *zoneID == "" || *label == "" {
		fmt.Fprintln(os.Stderr, "Usage: gns-cli lookup --zone <base32-id> --label <l>")
		os.Exit(1)
	}

	zonePub, err := crypto.ParseZoneIDBase32(*zoneID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse zone id: %v\n", err)
		os.Exit(1)
	}

	dht, err := adapters.NewDHTClient(*dhtPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dht: %v\n", err)
		os.Exit(1)
	}
	defer dht.Close()

	resolver := &gnszone.Resolver{Store: dht}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rds, err := resolver.Resolve(ctx, zonePub, *label, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "lookup: %v\n", err)
		os.Exit(1)
	}

	if len(rds) == 0 {
		fmt.Println("No records found")
		return
	}
	for _, r := range rds {
		fmt.Printf("type=%d flags=%s expiration=%s data=%q\n",
			r.Type, describeFlags(r.Flags), time.UnixMicro(r.Expiration).Format(time.RFC3339), r.Data)
	}
}

func loadZoneKey(path string, encrypted bool) (*crypto.ZoneKey, error) {
	if !encrypted {
		return crypto.LoadZoneKey(path)
	}
	password, err := crypto.ReadPassword("Enter decryption password: ")
	if err != nil {
		return nil, err
	}
	return crypto.LoadZoneKeyEncrypted(path, password)
}

func describeFlags(f gnsrecord.Flag) string {
	var parts []string
	if f&gnsrecord.FlagPrivate != 0 {
		parts = append(parts, "private")
	}
	if f&gnsrecord.FlagAuthority != 0 {
		parts = append(parts, "authority")
	}
	if f&gnsrecord.FlagPending != 0 {
		parts = append(parts, "pending")
	}
	if f&gnsrecord.FlagShadow != 0 {
		parts = append(parts, "shadow")
	}
	if f&gnsrecord.FlagRelative != 0 {
		parts = append(parts, "relative")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}
