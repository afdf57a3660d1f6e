// Command zonecheck validates a zone master file against the invariants
// internal/zone enforces and prints the parsed record set.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/driftdns/driftdns/internal/dnswire"
	"github.com/driftdns/driftdns/internal/zone"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: zonecheck path/to/zonefile\n")
		return 2
	}
	path := args[0]

	z, warnings, err := zone.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid zone: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	fmt.Printf("ORIGIN: %s\n", z.Origin)
	if soa, ok := z.SOA(); ok {
		fmt.Printf("SOA: %v\n", soa.Data)
	}
	fmt.Println("RECORDS:")

	recs := z.AllRecords()
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return fmt.Sprintf("%v", a.Data) < fmt.Sprintf("%v", b.Data)
	})
	for _, rr := range recs {
		fmt.Printf("  %s %d IN %s %v\n", rr.Name, rr.TTL, dnswire.RecordType(rr.Type), rr.Data)
	}
	return 0
}
