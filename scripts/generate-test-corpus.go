//go:build ignore

// Generates a synthetic document corpus for benchmarking and manual testing.
// Usage: go run scripts/generate-test-corpus.go -records 1000 -output testdata/bench.db
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loupe-search/loupe/internal/store"
)

var (
	numRecords = flag.Int("records", 1000, "Number of records to generate")
	output     = flag.String("output", "testdata/bench.db", "Output SQLite database")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
	reorganize = flag.Float64("reorganize", 0.3, "Fraction of records given an organization override")
	reanalyze  = flag.Float64("reanalyze", 0.1, "Fraction of files that get a second analysis record")
)

// category groups the templates used to synthesize plausible analyzed
// documents. Numbers and names are filled in per record.
type category struct {
	name     string
	dir      string
	subjects []string
	bodies   []string
	tags     []string
}

var categories = []category{
	{
		name: "finance",
		dir:  "finance/invoices",
		subjects: []string{
			"%s invoice %s", "Invoice from %s", "%s billing statement %s",
		},
		bodies: []string{
			"Invoice number %s. %s bills services rendered. Total due %d EUR payable within 30 days.",
			"Statement %s from %s. Outstanding balance of %d EUR. Late fees apply after the due date.",
		},
		tags: []string{"invoice", "finance", "billing"},
	},
	{
		name: "travel",
		dir:  "travel",
		subjects: []string{
			"%s trip itinerary", "Flight confirmation %s to %s", "Hotel booking %s",
		},
		bodies: []string{
			"Outbound flight departs %02d:%02d. Return on %s. Hotel reservation for %d nights, breakfast included.",
			"Booking reference %s. Check-in %s, checkout %d days later. Cancellation free until 48 hours before arrival.",
		},
		tags: []string{"travel", "booking"},
	},
	{
		name: "household",
		dir:  "docs/household",
		subjects: []string{
			"%s warranty card", "Insurance policy %s", "%s lease agreement",
		},
		bodies: []string{
			"Warranty covers parts and labor for %d months from purchase date. Serial number %s.",
			"Policy %s renews annually. Coverage up to %d EUR per incident, deductible applies.",
		},
		tags: []string{"household", "contract"},
	},
	{
		name: "medical",
		dir:  "docs/medical",
		subjects: []string{
			"Lab results %s", "Prescription %s", "Appointment summary %s",
		},
		bodies: []string{
			"Results within normal range. Follow-up recommended in %d months. Reference %s.",
			"Take %d tablets daily with food. Refill available after %s.",
		},
		tags: []string{"medical", "health"},
	},
}

var vendors = []string{"ACME Corp", "Globex", "Initech", "Umbrella Ltd", "Stark Industries", "Wayne Enterprises"}
var cities = []string{"Berlin", "Lisbon", "Oslo", "Madrid", "Vienna", "Prague"}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := run(rng); err != nil {
		fmt.Fprintf(os.Stderr, "generate corpus: %v\n", err)
		os.Exit(1)
	}
}

func run(rng *rand.Rand) error {
	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		return err
	}
	_ = os.Remove(*output)

	source, err := store.NewSQLiteDocumentSource(*output)
	if err != nil {
		return err
	}
	defer source.Close()

	ctx := context.Background()
	if err := source.Initialize(ctx); err != nil {
		return err
	}

	base := time.Now().Add(-time.Duration(*numRecords) * time.Minute)
	records := make([]*store.SourceRecord, 0, *numRecords)

	for i := 0; i < *numRecords; i++ {
		rec := synthesize(rng, i, base.Add(time.Duration(i)*time.Minute))
		records = append(records, rec)

		if rng.Float64() < *reanalyze {
			again := synthesize(rng, i, rec.Timestamp.Add(30*time.Second))
			again.ID = fmt.Sprintf("%s-v2", rec.ID)
			again.CurrentPath = rec.EffectivePath()
			again.CurrentName = rec.EffectiveName()
			again.Organization = nil
			records = append(records, again)
		}
	}

	// Batch to keep transactions reasonable on large corpora.
	const batch = 500
	for start := 0; start < len(records); start += batch {
		end := start + batch
		if end > len(records) {
			end = len(records)
		}
		if err := source.PutRecords(ctx, records[start:end]); err != nil {
			return err
		}
	}

	fmt.Printf("wrote %d records to %s\n", len(records), *output)
	return nil
}

func synthesize(rng *rand.Rand, i int, ts time.Time) *store.SourceRecord {
	cat := categories[rng.Intn(len(categories))]
	vendor := vendors[rng.Intn(len(vendors))]
	city := cities[rng.Intn(len(cities))]
	ref := fmt.Sprintf("%04d-%03d", 2020+rng.Intn(6), rng.Intn(1000))

	subject := fill(cat.subjects[rng.Intn(len(cat.subjects))], vendor, city, ref, rng)
	body := fill(cat.bodies[rng.Intn(len(cat.bodies))], vendor, city, ref, rng)

	name := fmt.Sprintf("scan-%06d.pdf", i)
	rec := &store.SourceRecord{
		ID:          fmt.Sprintf("rec-%06d", i),
		CurrentPath: filepath.Join("inbox", name),
		CurrentName: name,
		Fields: store.RecordFields{
			Subject:       subject,
			Summary:       fmt.Sprintf("%s. Filed under %s.", subject, cat.name),
			Tags:          cat.tags,
			Category:      cat.name,
			ExtractedText: body,
		},
		Timestamp: ts,
	}

	if rng.Float64() < *reorganize {
		organized := fmt.Sprintf("%s-%s.pdf", slug(subject), ref)
		rec.Organization = &store.Organization{
			Actual:  filepath.Join(cat.dir, organized),
			NewName: organized,
		}
	}
	return rec
}

// fill substitutes template verbs left to right with plausible values.
// Templates mix %s and %d, so substitution is positional by verb kind.
func fill(tmpl, vendor, city, ref string, rng *rand.Rand) string {
	strArgs := []string{vendor, city, ref, city}
	var out strings.Builder
	si := 0
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '%' || i+1 >= len(tmpl) {
			out.WriteByte(tmpl[i])
			continue
		}
		switch tmpl[i+1] {
		case 's':
			out.WriteString(strArgs[si%len(strArgs)])
			si++
			i++
		case 'd':
			out.WriteString(fmt.Sprintf("%d", 1+rng.Intn(48)))
			i++
		case '0': // %02d
			out.WriteString(fmt.Sprintf("%02d", rng.Intn(60)))
			i += 3
		default:
			out.WriteByte(tmpl[i])
		}
	}
	return out.String()
}

func slug(s string) string {
	s = strings.ToLower(s)
	var out strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			out.WriteRune(r)
		case r == ' ' || r == '-' || r == '/':
			out.WriteRune('-')
		}
	}
	return strings.Trim(out.String(), "-")
}
