//go:build ignore

// Package main compares two `go test -bench` output files and exits
// non-zero when the current run regressed against the baseline.
// Usage: go run scripts/bench-compare.go [options] <current.txt> <baseline.txt>
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	threshold  = flag.Float64("threshold", 0.20, "Regression threshold as a fraction (0.20 = 20% slower)")
	outputJSON = flag.Bool("json", false, "Output the report as JSON")
	showAll    = flag.Bool("all", false, "Show unchanged benchmarks, not just regressions and improvements")
)

// improvementThreshold marks runs worth calling out as faster.
const improvementThreshold = 0.10

// metrics holds the measurements parsed from one benchmark line.
type metrics struct {
	nsPerOp    float64
	bytesPerOp float64
}

type comparison struct {
	Name       string  `json:"name"`
	BaselineNs float64 `json:"baseline_ns_per_op,omitempty"`
	CurrentNs  float64 `json:"current_ns_per_op,omitempty"`
	DeltaPct   float64 `json:"delta_percent"`
	Status     string  `json:"status"`
}

type report struct {
	Compared    int          `json:"compared"`
	Regressions int          `json:"regressions"`
	Improved    int          `json:"improved"`
	New         int          `json:"new"`
	Removed     int          `json:"removed"`
	Rows        []comparison `json:"rows"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <current.txt> <baseline.txt>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Compares Go benchmark output against a baseline run.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	current, err := parseFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
	baseline, err := parseFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", flag.Arg(1), err)
		os.Exit(1)
	}

	rep := compare(current, baseline, *threshold)

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding report: %v\n", err)
			os.Exit(1)
		}
	} else {
		printReport(rep)
	}

	if rep.Regressions > 0 {
		os.Exit(1)
	}
}

// parseFile collects benchmark measurements keyed by benchmark name.
// Lines that are not benchmark results (build output, PASS, ok) are
// skipped.
func parseFile(path string) (map[string]metrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	results := make(map[string]metrics)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if name, m, ok := parseLine(scanner.Text()); ok {
			results[name] = m
		}
	}
	return results, scanner.Err()
}

// parseLine parses one benchmark result line, e.g.
//
//	BenchmarkFuse-8   500000   2481 ns/op   1184 B/op   21 allocs/op
//
// Measurements come in value/unit pairs after the iteration count.
func parseLine(line string) (string, metrics, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
		return "", metrics{}, false
	}
	if _, err := strconv.Atoi(fields[1]); err != nil {
		return "", metrics{}, false
	}

	var m metrics
	seen := false
	for i := 2; i+1 < len(fields); i += 2 {
		value, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			break
		}
		switch fields[i+1] {
		case "ns/op":
			m.nsPerOp = value
			seen = true
		case "B/op":
			m.bytesPerOp = value
		}
	}
	return fields[0], m, seen
}

func compare(current, baseline map[string]metrics, threshold float64) *report {
	rep := &report{}

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		curr := current[name]
		base, ok := baseline[name]
		if !ok {
			rep.New++
			rep.Rows = append(rep.Rows, comparison{Name: name, CurrentNs: curr.nsPerOp, Status: "new"})
			continue
		}

		rep.Compared++
		delta := 0.0
		if base.nsPerOp > 0 {
			delta = (curr.nsPerOp - base.nsPerOp) / base.nsPerOp
		}
		row := comparison{
			Name:       name,
			BaselineNs: base.nsPerOp,
			CurrentNs:  curr.nsPerOp,
			DeltaPct:   delta * 100,
		}
		switch {
		case delta > threshold:
			row.Status = "regression"
			rep.Regressions++
		case delta < -improvementThreshold:
			row.Status = "improved"
			rep.Improved++
		default:
			row.Status = "ok"
		}
		rep.Rows = append(rep.Rows, row)
	}

	removed := make([]string, 0)
	for name := range baseline {
		if _, ok := current[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	for _, name := range removed {
		rep.Removed++
		rep.Rows = append(rep.Rows, comparison{Name: name, BaselineNs: baseline[name].nsPerOp, Status: "removed"})
	}

	return rep
}

func printReport(rep *report) {
	fmt.Printf("Benchmark comparison (regression threshold %.0f%%)\n\n", *threshold*100)
	fmt.Printf("  %-48s %12s %12s %9s\n", "BENCHMARK", "BASELINE", "CURRENT", "DELTA")

	for _, row := range rep.Rows {
		if row.Status == "ok" && !*showAll {
			continue
		}
		switch row.Status {
		case "new":
			fmt.Printf("  %-48s %12s %9.0f ns %9s  new\n", trim(row.Name), "-", row.CurrentNs, "-")
		case "removed":
			fmt.Printf("  %-48s %9.0f ns %12s %9s  removed\n", trim(row.Name), row.BaselineNs, "-", "-")
		default:
			tag := ""
			if row.Status != "ok" {
				tag = "  " + strings.ToUpper(row.Status)
			}
			fmt.Printf("  %-48s %9.0f ns %9.0f ns %+8.1f%%%s\n",
				trim(row.Name), row.BaselineNs, row.CurrentNs, row.DeltaPct, tag)
		}
	}

	fmt.Printf("\n%d compared, %d regressions, %d improved, %d new, %d removed\n",
		rep.Compared, rep.Regressions, rep.Improved, rep.New, rep.Removed)
	if rep.Regressions > 0 {
		fmt.Printf("FAIL: %d benchmark(s) regressed more than %.0f%%\n", rep.Regressions, *threshold*100)
	} else {
		fmt.Println("PASS: no regressions above threshold")
	}
}

func trim(name string) string {
	if len(name) <= 48 {
		return name
	}
	return name[:45] + "..."
}
