package aviator_test

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/allocation"
	"github.com/zero-day-ai/aviator/engine"
	"github.com/zero-day-ai/aviator/finding"
)

// writeArchive creates a minimal FPR with findings and source entries.
func writeArchive(dir string) (string, error) {
	path := filepath.Join(dir, "shop.fpr")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"audit.fvdl":    "<FVDL/>",
		"src/Shop.java": "class Shop {}",
	} {
		w, err := zw.Create(name)
		if err != nil {
			return "", err
		}
		if _, err := io.WriteString(w, body); err != nil {
			return "", err
		}
	}
	return path, zw.Close()
}

func at(line int) []finding.Location {
	return []finding.Location{{File: "src/Shop.java", Line: line}}
}

// Example plans a run without contacting the triage service. With two
// findings allowed per category, the third SQL injection is left out.
func Example() {
	dir, err := os.MkdirTemp("", "aviator-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path, err := writeArchive(dir)
	if err != nil {
		log.Fatal(err)
	}

	findings := []finding.Finding{
		{InstanceID: "sqli-3", Category: "SQL Injection", Trace: at(30)},
		{InstanceID: "sqli-1", Category: "SQL Injection", Trace: at(10)},
		{InstanceID: "sqli-2", Category: "SQL Injection", Trace: at(20)},
		{InstanceID: "xss-1", Category: "Cross-Site Scripting", Trace: at(5)},
	}

	eng := engine.New(nil,
		engine.WithLimits(allocation.Limits{MaxPerCategory: 2, MaxTotal: 10}),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	out, err := eng.Plan(context.Background(), engine.Input{ArchivePath: path, Findings: findings})
	if err != nil {
		log.Fatal(err)
	}

	for _, f := range out.Plan.Included {
		fmt.Println("triage:", f.InstanceID)
	}
	for _, s := range out.Plan.Skipped {
		fmt.Println("skip:", s.Finding.InstanceID, s.Reason)
	}

	// Output:
	// triage: xss-1
	// triage: sqli-1
	// triage: sqli-2
	// skip: sqli-3 PER_CATEGORY_EXCEEDED
}

// ExampleClassify shows how errors from collaborators are given a kind.
func ExampleClassify() {
	err := aviator.Classify("engine.Run", context.Canceled)
	fmt.Println(aviator.IsInterrupted(err))

	err = aviator.Classify("engine.Run", errors.New("connection reset"))
	fmt.Println(aviator.IsTechnical(err), err)

	rejected := aviator.NewSimpleError("triage", aviator.ErrRemoteRejected)
	fmt.Println(aviator.Classify("engine.Run", rejected) == error(rejected))

	// Output:
	// true
	// true aviator: engine.Run (technical): connection reset
	// true
}
