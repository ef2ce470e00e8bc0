// Package main - test-runner
// Executable that runs the deterministic end-to-end drive scenario against a
// real engine and classifier, without network or collaborators.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/parkpilot/server/internal/platform/logger"
	"github.com/parkpilot/server/test"
)

func main() {
	occupied := flag.String("occupied", "A3,A4,B1", "Comma separated spots painted as cars")
	verbose := flag.Bool("v", false, "Log every engine event")
	flag.Parse()

	fmt.Println("PARKPILOT - DRIVE SCENARIO")
	fmt.Println(strings.Repeat("=", 60))

	log := logger.Discard()
	if *verbose {
		log = logger.New(os.Stdout, "debug", false)
	}

	var spots []string
	for _, id := range strings.Split(*occupied, ",") {
		if id = strings.TrimSpace(id); id != "" {
			spots = append(spots, id)
		}
	}

	scenario, err := test.NewDriveScenario(log, spots...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "test-runner: %v\n", err)
		os.Exit(2)
	}
	scenario.Run(context.Background())

	passed, failed := 0, 0
	for _, r := range scenario.Results() {
		mark := "PASS"
		if r.Passed {
			passed++
		} else {
			mark = "FAIL"
			failed++
		}
		fmt.Printf("  [%s] %-16s %s\n", mark, r.Name, r.Detail)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("   Passed: %d\n", passed)
	fmt.Printf("   Failed: %d\n", failed)

	if failed > 0 {
		os.Exit(1)
	}
}
